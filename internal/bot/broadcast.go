package bot

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// BroadcastResult counts deliveries of one fan-out.
type BroadcastResult struct {
	Sent   int
	Failed int
}

// Broadcast sends m to every recipient with at most concurrency sends in
// flight. A failed delivery never stops the others.
func Broadcast(ctx context.Context, msgr Messenger, recipients []int64, m Message, concurrency int) BroadcastResult {
	if concurrency < 1 {
		concurrency = 1
	}
	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, id := range recipients {
		id := id
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			if _, err := msgr.Send(id, m); err != nil {
				logf(ctx, "error broadcasting to %d: %v", id, err)
				failed.Add(1)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	g.Wait()
	return BroadcastResult{Sent: int(sent.Load()), Failed: int(failed.Load())}
}
