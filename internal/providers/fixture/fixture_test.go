package fixture

import (
	"context"
	"testing"

	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestProvider(variant Variant, catalog []Candidate) *Provider {
	return NewProvider(variant, catalog, rate.Inf)
}

func TestSearchAuto_AcceptsCloseMatch(t *testing.T) {
	p := newTestProvider(VariantYT, []Candidate{
		{ID: "yt1", Title: "Hotline Bling", Artist: "Drake"},
	})

	hit, err := p.SearchAuto(context.Background(), "Hotline Bling", "Drake")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "yt1", hit.TargetID)
}

func TestSearchAuto_RejectsNoCandidate(t *testing.T) {
	p := newTestProvider(VariantYT, []Candidate{
		{ID: "yt1", Title: "Completely Unrelated Track", Artist: "Nobody"},
	})

	hit, err := p.SearchAuto(context.Background(), "Hotline Bling", "Drake")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestSearchAuto_PicksHighestCombinedScore(t *testing.T) {
	p := newTestProvider(VariantYT, []Candidate{
		{ID: "weak", Title: "Hotline Blingg", Artist: "Someone Else"},
		{ID: "strong", Title: "Hotline Bling", Artist: "Drake"},
	})

	hit, err := p.SearchAuto(context.Background(), "Hotline Bling", "Drake")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "strong", hit.TargetID)
}

func TestReportQuotaCost_OnlyYTIsNonzero(t *testing.T) {
	yt := newTestProvider(VariantYT, nil)
	sp := newTestProvider(VariantSP, nil)

	assert.Equal(t, 1, yt.ReportQuotaCost(interfaces.QuotaOpList))
	assert.Equal(t, 0, sp.ReportQuotaCost(interfaces.QuotaOpList))
}

func TestGetPlaylistByName_NotFound(t *testing.T) {
	p := newTestProvider(VariantYT, nil)
	_, err := p.GetPlaylistByName(context.Background(), "user-1", "Missing")
	assert.Error(t, err)
}

func TestCreateThenResolvePlaylist(t *testing.T) {
	p := newTestProvider(VariantYT, nil)
	ctx := context.Background()

	id, err := p.CreatePlaylist(ctx, "user-1", "Road Trip")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ref, err := p.GetPlaylistByName(ctx, "user-1", "Road Trip")
	require.NoError(t, err)
	assert.Equal(t, id, ref.ID)
}
