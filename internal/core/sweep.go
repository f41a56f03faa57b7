package core

import (
	"context"
	"log/slog"
	"time"

	"parley/server/internal/metrics"
)

// RunHistorySweep removes history entries older than ttl every
// interval until ctx is canceled.
func RunHistorySweep(ctx context.Context, st *State, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("history sweep running", "interval", interval, "ttl", ttl)
	for {
		select {
		case <-ctx.Done():
			slog.Info("history sweep stopped")
			return
		case <-ticker.C:
			if removed := st.SweepHistory(time.Now(), ttl); removed > 0 {
				metrics.HistorySwept.Add(float64(removed))
				slog.Debug("history swept", "removed", removed, "remaining", st.HistoryLen())
			}
		}
	}
}

// RunBanSweep clears expired ban entries every interval until ctx is
// canceled.
func RunBanSweep(ctx context.Context, st *State, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("ban sweep running", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("ban sweep stopped")
			return
		case <-ticker.C:
			if removed := st.SweepBans(); removed > 0 {
				slog.Debug("bans swept", "removed", removed)
			}
		}
	}
}
