package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/models"
)

const (
	playlistReadyPollAttempts = 5
	playlistReadyPollInterval = 1500 * time.Millisecond
)

// Run executes the Matching Pipeline (§4.E) for a single sync direction:
// resolve/create the target playlist, enumerate existing target items
// for deduplication, enumerate source items (respecting songLimit), and
// search-and-decide per remaining item. Every call billed by the target
// provider's ReportQuotaCost is consumed against ledger as it happens —
// Consume bills actual usage, Reserve (at intake) only throttled intake.
func Run(ctx context.Context, logger *common.Logger, source, target interfaces.Provider, ledger interfaces.QuotaLedger, userID, playlistName string, songLimit int) ([]models.TrackDecision, error) {
	sourcePlaylist, err := source.GetPlaylistByName(ctx, userID, playlistName)
	if err != nil {
		return nil, fmt.Errorf("source playlist %q not found: %w", playlistName, err)
	}

	targetPlaylist, err := ResolveOrCreateTarget(ctx, logger, target, ledger, userID, playlistName)
	if err != nil {
		return nil, err
	}

	existing, err := existingTitles(ctx, target, targetPlaylist.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate target playlist items: %w", err)
	}
	if err := consume(ctx, ledger, target, interfaces.QuotaOpList); err != nil {
		return nil, err
	}

	items, err := source.ListPlaylistItems(ctx, sourcePlaylist.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate source playlist items: %w", err)
	}
	if err := consume(ctx, ledger, source, interfaces.QuotaOpList); err != nil {
		return nil, err
	}
	if songLimit > 0 && songLimit < len(items) {
		items = items[:songLimit]
	}

	decisions := make([]models.TrackDecision, 0, len(items))
	for _, item := range items {
		if item.Unplayable {
			decisions = append(decisions, models.TrackDecision{
				Name:                 item.Title,
				Artist:               item.Artist,
				Status:               models.TrackNotFound,
				RequiresManualSearch: true,
				Reason:               "Unplayable source item.",
			})
			continue
		}

		hit, err := target.SearchAuto(ctx, item.Title, item.Artist)
		if err != nil {
			return nil, fmt.Errorf("search failed for %q: %w", item.Title, err)
		}
		if err := consume(ctx, ledger, target, interfaces.QuotaOpSearch); err != nil {
			return nil, err
		}

		if hit == nil {
			decisions = append(decisions, models.TrackDecision{
				Name:                 item.Title,
				Artist:               item.Artist,
				Status:               models.TrackNotFound,
				RequiresManualSearch: true,
			})
			continue
		}

		key := Normalize(hit.MatchedTitle, hit.MatchedArtist)
		if existing[key] {
			// Duplicate of an item already in the target playlist: skipped silently.
			continue
		}

		decisions = append(decisions, models.TrackDecision{
			Name:         item.Title,
			Artist:       item.Artist,
			Status:       models.TrackFound,
			TargetID:     hit.TargetID,
			TargetTitle:  hit.MatchedTitle,
			TargetArtist: hit.MatchedArtist,
		})
	}

	return decisions, nil
}

// ResolveOrCreateTarget resolves the target playlist by name, creating
// it if absent. The provider's create-then-read path is not
// read-your-writes consistent, so a freshly created playlist is polled
// for up to playlistReadyPollAttempts before giving up. Shared by the
// sync pipeline and the merge runner, which both need a playlist ready
// to receive additions before proceeding.
func ResolveOrCreateTarget(ctx context.Context, logger *common.Logger, target interfaces.Provider, ledger interfaces.QuotaLedger, userID, name string) (*interfaces.PlaylistRef, error) {
	ref, err := target.GetPlaylistByName(ctx, userID, name)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve target playlist %q: %w", name, err)
	}

	if _, err := target.CreatePlaylist(ctx, userID, name); err != nil {
		return nil, fmt.Errorf("failed to create target playlist %q: %w", name, err)
	}
	if err := consume(ctx, ledger, target, interfaces.QuotaOpCreate); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= playlistReadyPollAttempts; attempt++ {
		ref, err := target.GetPlaylistByName(ctx, userID, name)
		if err == nil {
			logger.Debug().Int("attempt", attempt).Str("playlist", name).Msg("Matching: target playlist became visible after create")
			return ref, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(playlistReadyPollInterval):
		}
	}
	return nil, fmt.Errorf("target playlist %q not visible after create: %w", name, lastErr)
}

// MatchItems runs the §4.E scoring step over a pre-fetched item list
// without resolving a playlist or deduplicating against existing
// content first — the shape the merge runner needs for its
// opposite-provider half, where the items already came from a playlist
// listed elsewhere and there is no separate "existing target items" set
// to dedup against.
func MatchItems(ctx context.Context, logger *common.Logger, target interfaces.Provider, ledger interfaces.QuotaLedger, items []interfaces.PlaylistItem) ([]models.TrackDecision, error) {
	decisions := make([]models.TrackDecision, 0, len(items))
	for _, item := range items {
		if item.Unplayable {
			decisions = append(decisions, models.TrackDecision{
				Name:                 item.Title,
				Artist:               item.Artist,
				Status:               models.TrackNotFound,
				RequiresManualSearch: true,
				Reason:               "Unplayable source item.",
			})
			continue
		}

		hit, err := target.SearchAuto(ctx, item.Title, item.Artist)
		if err != nil {
			return nil, fmt.Errorf("search failed for %q: %w", item.Title, err)
		}
		if err := consume(ctx, ledger, target, interfaces.QuotaOpSearch); err != nil {
			return nil, err
		}

		if hit == nil {
			decisions = append(decisions, models.TrackDecision{
				Name:                 item.Title,
				Artist:               item.Artist,
				Status:               models.TrackNotFound,
				RequiresManualSearch: true,
			})
			continue
		}

		decisions = append(decisions, models.TrackDecision{
			Name:         item.Title,
			Artist:       item.Artist,
			Status:       models.TrackFound,
			TargetID:     hit.TargetID,
			TargetTitle:  hit.MatchedTitle,
			TargetArtist: hit.MatchedArtist,
		})
	}
	return decisions, nil
}

// consume bills ledger for whatever provider.ReportQuotaCost says op
// costs. A zero-cost op (any SP-variant call) is a harmless no-op write.
func consume(ctx context.Context, ledger interfaces.QuotaLedger, provider interfaces.Provider, op interfaces.QuotaOp) error {
	cost := provider.ReportQuotaCost(op)
	if cost == 0 {
		return nil
	}
	return ledger.Consume(ctx, cost)
}

func existingTitles(ctx context.Context, target interfaces.Provider, playlistID string) (map[string]bool, error) {
	items, err := target.ListPlaylistItems(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item.Unplayable {
			continue
		}
		set[Normalize(item.Title, item.Artist)] = true
	}
	return set, nil
}
