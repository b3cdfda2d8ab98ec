package inject

import (
	"context"
	"sync"

	"go.viam.com/pubtf/referenceframe"
)

// Broadcaster is an injected broadcaster. With no functions injected it records every
// broadcast and succeeds.
type Broadcaster struct {
	BroadcastFunc func(ctx context.Context, tr referenceframe.TransformRecord) error
	CloseFunc     func(ctx context.Context) error

	mu        sync.Mutex
	published []referenceframe.TransformRecord
	closed    int
}

// Broadcast calls the injected Broadcast or records tr.
func (b *Broadcaster) Broadcast(ctx context.Context, tr referenceframe.TransformRecord) error {
	if b.BroadcastFunc != nil {
		if err := b.BroadcastFunc(ctx, tr); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, tr)
	return nil
}

// Close calls the injected Close or counts the call.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	if b.CloseFunc == nil {
		return nil
	}
	return b.CloseFunc(ctx)
}

// Published returns a copy of every record broadcast successfully so far.
func (b *Broadcaster) Published() []referenceframe.TransformRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]referenceframe.TransformRecord(nil), b.published...)
}

// CloseCalls returns how many times Close was called.
func (b *Broadcaster) CloseCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
