package auth

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultTokenSweepInterval is used when StartTokenSweeper gets a
// non-positive interval.
const DefaultTokenSweepInterval = time.Hour

// StartTokenSweeper periodically removes expired rows from user_tokens until
// ctx is cancelled. Cached copies expire on their own TTL.
func (s *Service) StartTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.PurgeExpiredTokens(ctx); err != nil {
				log.Printf("[auth] sweep expired tokens: %v", err)
			} else if n > 0 {
				log.Printf("[auth] swept %d expired tokens", n)
			}
		}
	}
}

// PurgeExpiredTokens deletes every token whose expiry has passed and reports
// how many were removed.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM user_tokens WHERE expires_at <= ?`), s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
