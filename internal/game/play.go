package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PlayRecorder counts plays in the background.
type PlayRecorder struct {
	store  Store
	events *Broadcaster
	wg     sync.WaitGroup
}

// NewPlayRecorder returns a recorder. events may be nil.
func NewPlayRecorder(store Store, events *Broadcaster) *PlayRecorder {
	return &PlayRecorder{store: store, events: events}
}

// RecordPlay adds one to the popularity and play count of a game without
// blocking the caller. The increment outlives ctx cancellation. Failures are
// logged and not retried.
func (r *PlayRecorder) RecordPlay(ctx context.Context, gameID string) {
	ctx = context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if err := r.store.IncrementPlay(ctx, gameID); err != nil {
			slog.Error("failed to record play", "game_id", gameID, "error", err)
			return
		}
		if r.events != nil {
			r.events.Publish(Event{
				Type:      EventTypeGamePlayed,
				GameID:    gameID,
				Timestamp: time.Now(),
			})
		}
	}()
}

// Wait blocks until every pending increment has finished.
func (r *PlayRecorder) Wait() {
	r.wg.Wait()
}
