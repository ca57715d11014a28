package interfaces

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned by any Provider call when the caller's
// stored token is absent or refused by the upstream service (§7
// Authentication). Intake maps it to HTTP 401; if it surfaces mid-pipeline
// the Job Runner marks the job errored with the provider's message.
var ErrUnauthenticated = errors.New("provider authentication failed")

// PlaylistRef is the minimal playlist identity a Provider returns.
type PlaylistRef struct {
	ID         string
	Title      string
	TrackCount int
}

// PlaylistItem is one opaque track row returned while enumerating a
// playlist's contents (§4.D). Unplayable tombstoned entries carry an
// empty SourceID.
type PlaylistItem struct {
	SourceID   string
	Title      string
	Artist     string
	Unplayable bool
}

// SearchHit is what SearchAuto returns for an accepted match (§4.D, §4.E).
type SearchHit struct {
	TargetID     string
	TitleScore   float64
	ArtistScore  float64
	MatchedTitle string
	MatchedArtist string
}

// QuotaOp enumerates the provider operations ReportQuotaCost prices.
type QuotaOp string

const (
	QuotaOpList   QuotaOp = "list"
	QuotaOpSearch QuotaOp = "search"
	QuotaOpInsert QuotaOp = "insert"
	QuotaOpCreate QuotaOp = "create"
	QuotaOpDelete QuotaOp = "delete"
)

// Provider is the uniform capability contract the core requires of each
// streaming/video service variant (§4.D). OAuth, SDK wiring, and token
// refresh are all external to this interface.
type Provider interface {
	// GetPlaylistByName returns the playlist or ErrNotFound.
	GetPlaylistByName(ctx context.Context, userID, name string) (*PlaylistRef, error)

	// ListPlaylistItems streams every item in the playlist, handling
	// server-side pagination internally.
	ListPlaylistItems(ctx context.Context, playlistID string) ([]PlaylistItem, error)

	// CreatePlaylist creates an empty playlist and returns its id.
	CreatePlaylist(ctx context.Context, userID, name string) (string, error)

	// AddToPlaylist bulk-adds target ids; idempotent from the caller's
	// point of view (duplicates accepted).
	AddToPlaylist(ctx context.Context, playlistID string, targetIDs []string) error

	// SearchAuto finds the best acceptable match for (trackName, artist)
	// among this provider's search results, or nil if none clears the
	// acceptance thresholds (§4.E Scoring).
	SearchAuto(ctx context.Context, trackName, artist string) (*SearchHit, error)

	// GetPlaylistTrackCount returns the track count without fetching items.
	GetPlaylistTrackCount(ctx context.Context, playlistID string) (int, error)

	// ReportQuotaCost is advisory: the number of quota units this
	// provider variant bills for op. SP-variant providers always
	// report 0; only the YT-variant is quota-controlled.
	ReportQuotaCost(op QuotaOp) int
}
