// Package geo implements the device location feed and spatial cell helpers.
package geo

import (
	"context"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/flow"
)

// Feed receives device fixes and fans the latest one out to every
// subscriber. It implements taxi.LocationProvider.
type Feed struct {
	latest *flow.State[*taxi.Position]
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{latest: flow.NewState[*taxi.Position](nil, flow.PtrEqual[taxi.Position])}
}

// Publish records a new device fix.
func (f *Feed) Publish(pos taxi.Position) {
	f.latest.Set(&pos)
}

// Latest returns the most recent fix, nil before the first one.
func (f *Feed) Latest() *taxi.Position {
	return f.latest.Value()
}

// Updates streams fixes until ctx is done, starting with the latest known
// one. Slow readers only observe the most recent fix.
func (f *Feed) Updates(ctx context.Context) <-chan taxi.Position {
	out := make(chan taxi.Position)
	go func() {
		defer close(out)
		for pos := range f.latest.Subscribe(ctx) {
			if pos == nil {
				continue
			}
			select {
			case out <- *pos:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
