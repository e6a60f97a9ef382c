package db

import (
	"context"
	"log/slog"
	"time"
)

const retentionSweepInterval = 24 * time.Hour

// Retention prunes old job history in the background so the database on a
// long-lived edge device stays bounded.
type Retention struct {
	days   int
	log    *slog.Logger
	stopCh chan struct{}
}

func NewRetention(days int, log *slog.Logger) *Retention {
	if days <= 0 {
		days = 30
	}
	return &Retention{
		days:   days,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

func (r *Retention) Start() {
	go r.run()
}

func (r *Retention) Stop() {
	close(r.stopCh)
}

func (r *Retention) run() {
	// Sweep once at startup. Edge devices restart often enough that a
	// pure interval timer might never fire.
	r.sweep()

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Retention) sweep() {
	removed, err := History.PruneOlderThan(context.Background(), r.days)
	if err != nil {
		r.log.Error("history retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		r.log.Info("pruned job history", "removed", removed, "retention_days", r.days)
	}
}
