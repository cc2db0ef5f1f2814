package records

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// Watcher reports changes written by other origins.
type Watcher struct {
	db       dbx.DBTX
	origin   string
	interval time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	cursor  int64
	started bool
}

func NewWatcher(db dbx.DBTX, origin string, interval time.Duration, logger logging.Logger) *Watcher {
	return &Watcher{db: db, origin: origin, interval: interval, logger: logger}
}

// Start positions the watcher at the end of the change log, so only changes
// written afterwards are reported. Calling it again is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	var last int64
	if err := w.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM changes`).Scan(&last); err != nil {
		return fmt.Errorf("failed to read change log position: %w", err)
	}
	w.cursor = last
	w.started = true
	return nil
}

// Poll returns the foreign changes logged since the previous poll, oldest
// first. The cursor also moves past the watcher's own changes.
func (w *Watcher) Poll(ctx context.Context) ([]Change, error) {
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.QueryContext(ctx,
		`SELECT id, key, origin, changed_at FROM changes WHERE id > ? ORDER BY id`, w.cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to poll changes: %w", err)
	}
	defer rows.Close()

	cursor := w.cursor
	var result []Change
	for rows.Next() {
		var c Change
		var changedAt int64
		if err := rows.Scan(&c.ID, &c.Key, &c.Origin, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change row: %w", err)
		}
		cursor = c.ID
		if c.Origin == w.origin {
			continue
		}
		c.ChangedAt = time.UnixMilli(changedAt)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate change rows: %w", err)
	}

	w.cursor = cursor
	return result, nil
}

// Run polls every interval until ctx is done and passes non-empty batches to
// handle. Poll failures are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context, handle func(ctx context.Context, changes []Change)) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			changes, err := w.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warn(ctx, "change poll failed", "error", err)
				continue
			}
			if len(changes) > 0 {
				handle(ctx, changes)
			}
		}
	}
}

// Keys returns the distinct keys of changes in first-seen order.
func Keys(changes []Change) []string {
	seen := make(map[string]struct{}, len(changes))
	keys := make([]string, 0, len(changes))
	for _, c := range changes {
		if _, ok := seen[c.Key]; ok {
			continue
		}
		seen[c.Key] = struct{}{}
		keys = append(keys, c.Key)
	}
	return keys
}
