package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/charasync/internal/logging"
)

// RunPurge removes expired records and refresh tokens every interval until
// ctx is done. A failed pass is logged and retried on the next tick.
func RunPurge(ctx context.Context, interval time.Duration, records *RecordService, users *UserService, log logging.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			purgeOnce(ctx, records, users, log)
		}
	}
}

func purgeOnce(ctx context.Context, records *RecordService, users *UserService, log logging.Logger) {
	if _, err := records.PurgeExpired(ctx); err != nil {
		log.Error(ctx, "record purge failed", "error", err)
	}
	n, err := users.PurgeExpiredTokens(ctx, records.now())
	if err != nil {
		log.Error(ctx, "token purge failed", "error", err)
		return
	}
	if n > 0 {
		log.Info(ctx, "expired refresh tokens purged", "count", n)
	}
}
