package matching

import (
	"context"
	"testing"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a deterministic, in-memory interfaces.Provider double
// used only to exercise the pipeline's control flow; no network, no
// scoring logic of its own.
type fakeProvider struct {
	playlists    map[string]*interfaces.PlaylistRef
	items        map[string][]interfaces.PlaylistItem
	searchResult map[string]*interfaces.SearchHit
	added        map[string][]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		playlists:    make(map[string]*interfaces.PlaylistRef),
		items:        make(map[string][]interfaces.PlaylistItem),
		searchResult: make(map[string]*interfaces.SearchHit),
		added:        make(map[string][]string),
	}
}

func (f *fakeProvider) GetPlaylistByName(ctx context.Context, userID, name string) (*interfaces.PlaylistRef, error) {
	if ref, ok := f.playlists[name]; ok {
		return ref, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeProvider) ListPlaylistItems(ctx context.Context, playlistID string) ([]interfaces.PlaylistItem, error) {
	return f.items[playlistID], nil
}

func (f *fakeProvider) CreatePlaylist(ctx context.Context, userID, name string) (string, error) {
	id := "playlist-" + name
	f.playlists[name] = &interfaces.PlaylistRef{ID: id, Title: name}
	return id, nil
}

func (f *fakeProvider) AddToPlaylist(ctx context.Context, playlistID string, targetIDs []string) error {
	f.added[playlistID] = append(f.added[playlistID], targetIDs...)
	return nil
}

func (f *fakeProvider) SearchAuto(ctx context.Context, trackName, artist string) (*interfaces.SearchHit, error) {
	return f.searchResult[trackName], nil
}

func (f *fakeProvider) GetPlaylistTrackCount(ctx context.Context, playlistID string) (int, error) {
	return len(f.items[playlistID]), nil
}

func (f *fakeProvider) ReportQuotaCost(op interfaces.QuotaOp) int { return 0 }

var _ interfaces.Provider = (*fakeProvider)(nil)

// fakeLedger is an in-memory interfaces.QuotaLedger double that adds
// every Reserve and Consume to a running total and never refuses.
type fakeLedger struct {
	used int
}

func (l *fakeLedger) Reserve(ctx context.Context, required, ceiling int) (bool, error) {
	l.used += required
	return true, nil
}
func (l *fakeLedger) Consume(ctx context.Context, units int) error { l.used += units; return nil }
func (l *fakeLedger) Used(ctx context.Context) (int, error)        { return l.used, nil }
func (l *fakeLedger) Set(ctx context.Context, value int) error     { l.used = value; return nil }

var _ interfaces.QuotaLedger = (*fakeLedger)(nil)

// TestRun_HappyPath covers §8 Scenario A: every source track finds a hit.
func TestRun_HappyPath(t *testing.T) {
	source := newFakeProvider()
	target := newFakeProvider()
	logger := common.NewSilentLogger()

	source.playlists["Road Trip"] = &interfaces.PlaylistRef{ID: "sp-1", Title: "Road Trip"}
	source.items["sp-1"] = []interfaces.PlaylistItem{
		{SourceID: "s1", Title: "Hotline Bling", Artist: "Drake"},
		{SourceID: "s2", Title: "Free Kutter (feat. Jay Electronica)", Artist: "Big Sean"},
	}
	target.playlists["Road Trip"] = &interfaces.PlaylistRef{ID: "yt-1", Title: "Road Trip"}
	target.searchResult["Hotline Bling"] = &interfaces.SearchHit{TargetID: "t1", MatchedTitle: "Hotline Bling", MatchedArtist: "Drake"}
	target.searchResult["Free Kutter (feat. Jay Electronica)"] = &interfaces.SearchHit{TargetID: "t2", MatchedTitle: "Free Kutter", MatchedArtist: "Big Sean"}

	decisions, err := Run(context.Background(), logger, source, target, &fakeLedger{}, "user-1", "Road Trip", 0)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, models.TrackFound, decisions[0].Status)
	assert.Equal(t, "t1", decisions[0].TargetID)
	assert.Equal(t, models.TrackFound, decisions[1].Status)
	assert.Equal(t, "t2", decisions[1].TargetID)
}

// TestRun_Deduplication covers §8 Scenario D: a hit matching an item
// already in the target playlist contributes nothing to result.songs.
func TestRun_Deduplication(t *testing.T) {
	source := newFakeProvider()
	target := newFakeProvider()
	logger := common.NewSilentLogger()

	source.playlists["Mix"] = &interfaces.PlaylistRef{ID: "sp-1", Title: "Mix"}
	source.items["sp-1"] = []interfaces.PlaylistItem{
		{SourceID: "s1", Title: "Already There", Artist: "Artist A"},
		{SourceID: "s2", Title: "New Track", Artist: "Artist B"},
	}
	target.playlists["Mix"] = &interfaces.PlaylistRef{ID: "yt-1", Title: "Mix"}
	target.items["yt-1"] = []interfaces.PlaylistItem{
		{SourceID: "existing-1", Title: "Already There", Artist: "Artist A"},
	}
	target.searchResult["Already There"] = &interfaces.SearchHit{TargetID: "dup", MatchedTitle: "Already There", MatchedArtist: "Artist A"}
	target.searchResult["New Track"] = &interfaces.SearchHit{TargetID: "fresh", MatchedTitle: "New Track", MatchedArtist: "Artist B"}

	decisions, err := Run(context.Background(), logger, source, target, &fakeLedger{}, "user-1", "Mix", 0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "fresh", decisions[0].TargetID)
}

func TestRun_UnplayableSourceItem(t *testing.T) {
	source := newFakeProvider()
	target := newFakeProvider()
	logger := common.NewSilentLogger()

	source.playlists["P"] = &interfaces.PlaylistRef{ID: "sp-1", Title: "P"}
	source.items["sp-1"] = []interfaces.PlaylistItem{{Unplayable: true, Title: "Deleted Video"}}
	target.playlists["P"] = &interfaces.PlaylistRef{ID: "yt-1", Title: "P"}

	decisions, err := Run(context.Background(), logger, source, target, &fakeLedger{}, "user-1", "P", 0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.TrackNotFound, decisions[0].Status)
	assert.Equal(t, "Unplayable source item.", decisions[0].Reason)
}

func TestRun_SongLimitTruncates(t *testing.T) {
	source := newFakeProvider()
	target := newFakeProvider()
	logger := common.NewSilentLogger()

	source.playlists["P"] = &interfaces.PlaylistRef{ID: "sp-1", Title: "P"}
	source.items["sp-1"] = []interfaces.PlaylistItem{
		{Title: "A", Artist: "X"}, {Title: "B", Artist: "X"}, {Title: "C", Artist: "X"},
	}
	target.playlists["P"] = &interfaces.PlaylistRef{ID: "yt-1", Title: "P"}

	decisions, err := Run(context.Background(), logger, source, target, &fakeLedger{}, "user-1", "P", 2)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)
}

func TestNormalize_Idempotent(t *testing.T) {
	title := "Hotline Bling (Official Music Video)"
	once := Normalize(title, "Drake")
	twice := Normalize(once, "Drake")
	assert.Equal(t, once, twice)
}

func TestNormalize_DropsStopwordsAndArtistTokens(t *testing.T) {
	got := Normalize("Song Title feat. Some Artist (Official Video)", "Some Artist")
	assert.NotContains(t, got, "feat")
	assert.NotContains(t, got, "artist")
	assert.NotContains(t, got, "official")
}
