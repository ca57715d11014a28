// Package fixture provides a deterministic, in-memory implementation of
// interfaces.Provider. It stands in for the real OAuth-backed SP/YT SDK
// integrations, which §1 places outside the core's scope — this is the
// "implementation that sits outside the core" the Provider interface
// was designed to admit, sized for tests and local runs rather than a
// production deployment.
package fixture

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/matching"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/time/rate"
)

// Variant selects which provider's quota pricing and playlist namespace
// a Provider instance emulates.
type Variant string

const (
	VariantSP Variant = "sp"
	VariantYT Variant = "yt"
)

// quotaCosts is the per-operation cost table. Only the YT variant is
// quota-controlled (§4.D); the SP variant always reports zero.
var quotaCosts = map[Variant]map[interfaces.QuotaOp]int{
	VariantYT: {
		interfaces.QuotaOpList:   1,
		interfaces.QuotaOpSearch: 100,
		interfaces.QuotaOpInsert: 50,
		interfaces.QuotaOpCreate: 50,
		interfaces.QuotaOpDelete: 50,
	},
	VariantSP: {},
}

// Candidate is one searchable row in a Provider's catalog — the
// external track/video corpus that SearchAuto matches against.
type Candidate struct {
	ID     string
	Title  string
	Artist string
}

// Provider is a fixture interfaces.Provider backed by an in-memory
// playlist store and a fixed search catalog. Safe for concurrent use.
type Provider struct {
	variant Variant
	limiter *rate.Limiter

	mu        sync.Mutex
	playlists map[string]*interfaces.PlaylistRef
	items     map[string][]interfaces.PlaylistItem
	catalog   []Candidate
}

// NewProvider creates a fixture Provider. catalog is the fixed set of
// candidates SearchAuto matches against; limiterRate paces calls the
// way a rate-limited SDK client would (calls simulate the latency a
// real provider imposes rather than hitting any network).
func NewProvider(variant Variant, catalog []Candidate, limiterRate rate.Limit) *Provider {
	return &Provider{
		variant:   variant,
		limiter:   rate.NewLimiter(limiterRate, 1),
		playlists: make(map[string]*interfaces.PlaylistRef),
		items:     make(map[string][]interfaces.PlaylistItem),
		catalog:   catalog,
	}
}

// Seed pre-populates a playlist's existing items, for tests that need a
// target playlist with pre-existing content (dedup scenarios).
func (p *Provider) Seed(name string, items []interfaces.PlaylistItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "playlist-" + name
	p.playlists[name] = &interfaces.PlaylistRef{ID: id, Title: name, TrackCount: len(items)}
	p.items[id] = items
}

func (p *Provider) wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

func (p *Provider) GetPlaylistByName(ctx context.Context, userID, name string) (*interfaces.PlaylistRef, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ref, ok := p.playlists[name]; ok {
		cp := *ref
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (p *Provider) ListPlaylistItems(ctx context.Context, playlistID string) ([]interfaces.PlaylistItem, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.items[playlistID]
	out := make([]interfaces.PlaylistItem, len(items))
	copy(out, items)
	return out, nil
}

func (p *Provider) CreatePlaylist(ctx context.Context, userID, name string) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "playlist-" + name
	p.playlists[name] = &interfaces.PlaylistRef{ID: id, Title: name}
	return id, nil
}

func (p *Provider) AddToPlaylist(ctx context.Context, playlistID string, targetIDs []string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range targetIDs {
		candidate := p.findCandidate(id)
		if candidate == nil {
			continue
		}
		p.items[playlistID] = append(p.items[playlistID], interfaces.PlaylistItem{
			SourceID: candidate.ID, Title: candidate.Title, Artist: candidate.Artist,
		})
	}
	return nil
}

func (p *Provider) GetPlaylistTrackCount(ctx context.Context, playlistID string) (int, error) {
	if err := p.wait(ctx); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items[playlistID]), nil
}

func (p *Provider) ReportQuotaCost(op interfaces.QuotaOp) int {
	return quotaCosts[p.variant][op]
}

func (p *Provider) findCandidate(id string) *Candidate {
	for i := range p.catalog {
		if p.catalog[i].ID == id {
			return &p.catalog[i]
		}
	}
	return nil
}

// SearchAuto implements the §4.E scoring contract: composite title/artist
// scores over the catalog, acceptance thresholds (title>=60 && artist>=40)
// || title>=80, highest combined score wins, ties broken by earlier index.
func (p *Provider) SearchAuto(ctx context.Context, trackName, artist string) (*interfaces.SearchHit, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	catalog := make([]Candidate, len(p.catalog))
	copy(catalog, p.catalog)
	p.mu.Unlock()

	type scored struct {
		candidate Candidate
		title     float64
		artistS   float64
		combined  float64
	}

	var best *scored
	for _, c := range catalog {
		titleScore := compositeTitleScore(trackName, artist, c.Title)
		artistScore := compositeArtistScore(artist, c.Title, c.Artist)
		if !(titleScore >= 60 && artistScore >= 40) && !(titleScore >= 80) {
			continue
		}
		combined := 0.7*titleScore + 0.3*artistScore
		// Strict ">" keeps the earlier candidate on a tie (tie-break by index).
		if best == nil || combined > best.combined {
			best = &scored{candidate: c, title: titleScore, artistS: artistScore, combined: combined}
		}
	}

	if best == nil {
		return nil, nil
	}
	return &interfaces.SearchHit{
		TargetID:      best.candidate.ID,
		TitleScore:    best.title,
		ArtistScore:   best.artistS,
		MatchedTitle:  best.candidate.Title,
		MatchedArtist: best.candidate.Artist,
	}, nil
}

func compositeTitleScore(sourceTitle, sourceArtist, candidateTitle string) float64 {
	scores := []float64{
		ratio(strings.ToLower(sourceTitle), strings.ToLower(candidateTitle)),
		ratio(matching.Normalize(sourceTitle, sourceArtist), matching.Normalize(candidateTitle, sourceArtist)),
	}

	lowerSource := strings.ToLower(sourceTitle)
	if idx := strings.Index(lowerSource, "(feat"); idx >= 0 {
		scores = append(scores, ratio(strings.TrimSpace(sourceTitle[:idx]), candidateTitle))
	} else if idx := strings.Index(lowerSource, "(ft"); idx >= 0 {
		scores = append(scores, ratio(strings.TrimSpace(sourceTitle[:idx]), candidateTitle))
	}

	scores = append(scores, ratio(sourceTitle, stripSuffix(candidateTitle)))
	scores = append(scores, tokenSetOverlap(sourceTitle, candidateTitle))

	return maxFloat(scores)
}

func compositeArtistScore(sourceArtist, candidateTitle, candidateArtist string) float64 {
	scores := []float64{ratio(strings.ToLower(sourceArtist), strings.ToLower(candidateArtist))}

	lowerTitle := strings.ToLower(candidateTitle)
	lowerArtist := strings.ToLower(sourceArtist)
	if lowerArtist != "" && strings.Contains(lowerTitle, lowerArtist) {
		scores = append(scores, 88)
	}
	for _, word := range strings.Fields(lowerArtist) {
		if len(word) <= 2 {
			continue
		}
		if strings.Contains(lowerTitle, word) {
			scores = append(scores, 80)
		}
		if strings.Contains(strings.ToLower(candidateArtist), word) {
			scores = append(scores, 78)
		}
	}
	return maxFloat(scores)
}

var suffixes = []string{" official video", " official audio", " music video", " mv", " lyrics"}

func stripSuffix(title string) string {
	lower := strings.ToLower(title)
	for _, suf := range suffixes {
		if strings.HasSuffix(lower, suf) {
			return title[:len(title)-len(suf)]
		}
	}
	return title
}

func tokenSetOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	common := 0
	for tok := range setA {
		if setB[tok] {
			common++
		}
	}
	denom := len(setA)
	if len(setB) > denom {
		denom = len(setB)
	}
	return float64(common) / float64(denom) * 100
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	replacer := strings.NewReplacer("(", " ", ")", " ")
	for _, tok := range strings.Fields(replacer.Replace(strings.ToLower(s))) {
		out[tok] = true
	}
	return out
}

// ratio converts fuzzysearch's fuzzy-subsequence rank into a 0-100
// similarity score, normalized against the longer of the two strings —
// the same edit-distance-ratio shape the scoring spec calls for.
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}

	dist := fuzzy.RankMatchFold(a, b)
	if dist < 0 {
		// No fuzzy subsequence match at all: fall back to a coarse
		// token-overlap proxy rather than scoring zero outright.
		return tokenSetOverlap(a, b)
	}
	score := 100 * (1 - float64(dist)/float64(maxLen))
	if score < 0 {
		score = 0
	}
	return score
}

func maxFloat(values []float64) float64 {
	sort.Float64s(values)
	return values[len(values)-1]
}

var _ interfaces.Provider = (*Provider)(nil)
