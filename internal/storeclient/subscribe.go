package storeclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/retry"
)

const maxPollBackoff = 30 * time.Second

// subscription long-polls one collection's change feed.
type subscription struct {
	ch     chan remote.Change
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Changes() <-chan remote.Change { return s.ch }

// Close stops polling and waits for the poll loop to exit.
func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Subscribe starts following collection from the current head. Changes whose
// record fails an equality condition in where are dropped. The stream ends
// when ctx is cancelled, Close is called, or the server refuses the token.
func (c *Client) Subscribe(ctx context.Context, collection string, where []remote.Cond) (remote.Subscription, error) {
	head, err := c.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		ch:     make(chan remote.Change, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.poll(ctx, sub, collection, head, where)
	return sub, nil
}

func (c *Client) poll(ctx context.Context, sub *subscription, collection string, after int64, where []remote.Cond) {
	defer close(sub.done)
	defer close(sub.ch)

	failures := 0
	for ctx.Err() == nil {
		page, err := c.Changes(ctx, collection, after, c.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if remote.IsPermanent(err) {
				slog.Warn("subscription ended", "collection", collection, "err", err)
				return
			}
			failures++
			delay := min(retry.Delay(failures)*2, maxPollBackoff)
			slog.Debug("change poll failed", "collection", collection, "attempt", failures, "retry_in", delay, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		failures = 0

		for _, ch := range page.Changes {
			if ch.Collection == "" {
				ch.Collection = collection
			}
			if !remote.MatchesAll(ch.Record, where) {
				continue
			}
			select {
			case sub.ch <- ch:
			case <-ctx.Done():
				return
			}
		}
		if page.LastSeq > after {
			after = page.LastSeq
		}
	}
}
