package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Message is one publish delivered through a Hub.
type Message struct {
	RegionKey string
	Summaries []Summary
}

// AllRegions subscribes to every region key.
const AllRegions = "*"

// Hub is an in-process Publisher that fans messages out to channel
// subscribers of a region key. A slow subscriber whose buffer is full misses
// the message rather than blocking the publisher; dropped counts it.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[chan Message]struct{}
	dropped prometheus.Counter
}

// NewHub creates an empty Hub counting missed deliveries on dropped.
func NewHub(dropped prometheus.Counter) *Hub {
	return &Hub{subs: make(map[string]map[chan Message]struct{}), dropped: dropped}
}

// Subscribe returns a channel receiving messages for regionKey, or for every
// region with AllRegions, and a function that unsubscribes and closes it.
func (h *Hub) Subscribe(regionKey string, buffer int) (<-chan Message, func()) {
	ch := make(chan Message, buffer)
	h.mu.Lock()
	if h.subs[regionKey] == nil {
		h.subs[regionKey] = make(map[chan Message]struct{})
	}
	h.subs[regionKey][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[regionKey], ch)
			if len(h.subs[regionKey]) == 0 {
				delete(h.subs, regionKey)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers to every current subscriber of regionKey.
func (h *Hub) Publish(_ context.Context, regionKey string, summaries []Summary) error {
	msg := Message{RegionKey: regionKey, Summaries: summaries}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.subs[regionKey], msg)
	if regionKey != AllRegions {
		h.deliver(h.subs[AllRegions], msg)
	}
	return nil
}

func (h *Hub) deliver(subs map[chan Message]struct{}, msg Message) {
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			h.dropped.Inc()
		}
	}
}

// Fanout publishes to several publishers. Every publisher is attempted; the
// errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, regionKey string, summaries []Summary) error {
	var errs []error
	for i, p := range f {
		if err := p.Publish(ctx, regionKey, summaries); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
