package obsindex

import (
	"context"
	"time"

	"neodisc/internal/domain"
	"neodisc/internal/metrics"
)

// Instrumented records count, latency and failures of every lookup.
type Instrumented struct {
	next    Index
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewInstrumented(next Index, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m, now: time.Now}
}

func (i *Instrumented) LookupByPermanent(ctx context.Context, id string) ([]domain.Observation, error) {
	return i.observe(ctx, KindPermanent, id)
}

func (i *Instrumented) LookupByProvisional(ctx context.Context, id string) ([]domain.Observation, error) {
	return i.observe(ctx, KindProvisional, id)
}

func (i *Instrumented) LookupByTracklet(ctx context.Context, id string) ([]domain.Observation, error) {
	return i.observe(ctx, KindTracklet, id)
}

func (i *Instrumented) observe(ctx context.Context, kind, id string) ([]domain.Observation, error) {
	start := i.now()
	obs, err := lookup(ctx, i.next, kind, id)
	if i.metrics != nil {
		i.metrics.RecordLookup(kind, i.now().Sub(start), err)
	}
	return obs, err
}
