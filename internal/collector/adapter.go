package collector

import (
	"context"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// Adapter fetches one feed and translates its records into drafts.
//
// A returned error means the whole feed failed this cycle and is a
// *domain.TransientSourceError or *domain.MalformedPayloadError. Per-record
// problems go in Batch.Dropped and do not affect sibling records.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) (Batch, error)
}

// Spreader is implemented by adapters that sample a lattice. Spread is the
// lattice step in degrees; neighbouring cells reporting the same type in one
// dedup bucket are stored as one event.
type Spreader interface {
	Spread() float64
}

func spreadOf(a Adapter) float64 {
	if s, ok := a.(Spreader); ok {
		return s.Spread()
	}
	return 0
}

// Batch is the output of one Fetch.
type Batch struct {
	Drafts  []domain.Draft
	Dropped []error
}

// Drop records a malformed record.
func (b *Batch) Drop(source, record string, err error) {
	b.Dropped = append(b.Dropped, domain.Malformed(source, record, err))
}
