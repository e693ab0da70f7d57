// Package obsindex defines the read-only observation index contract and
// decorators layered over concrete stores.
//
// An index answers three point lookups, each backed by its own storage
// index. Callers query them separately and merge in process; an index never
// evaluates a combined predicate.
package obsindex

import (
	"context"
	"fmt"

	"neodisc/internal/domain"
)

// Index is a keyed, read-only observation store.
type Index interface {
	LookupByPermanent(ctx context.Context, id string) ([]domain.Observation, error)
	LookupByProvisional(ctx context.Context, id string) ([]domain.Observation, error)
	LookupByTracklet(ctx context.Context, id string) ([]domain.Observation, error)
}

// Lookup kinds, also used as metric labels and cache key prefixes.
const (
	KindPermanent   = "permanent"
	KindProvisional = "provisional"
	KindTracklet    = "tracklet"
)

// KindFor maps a candidate key type to the lookup that serves it. Cross
// provisional keys are provisional designations and share that index.
func KindFor(t domain.KeyType) (string, error) {
	switch t {
	case domain.KeyPermanent:
		return KindPermanent, nil
	case domain.KeyProvisional, domain.KeyCrossProvisional:
		return KindProvisional, nil
	default:
		return "", fmt.Errorf("unknown key type %q", t)
	}
}

// LookupKey issues the lookup matching key.
func LookupKey(ctx context.Context, idx Index, key domain.CandidateKey) ([]domain.Observation, error) {
	kind, err := KindFor(key.Type)
	if err != nil {
		return nil, err
	}
	return lookup(ctx, idx, kind, key.Value)
}

func lookup(ctx context.Context, idx Index, kind, id string) ([]domain.Observation, error) {
	switch kind {
	case KindPermanent:
		return idx.LookupByPermanent(ctx, id)
	case KindProvisional:
		return idx.LookupByProvisional(ctx, id)
	case KindTracklet:
		return idx.LookupByTracklet(ctx, id)
	default:
		return nil, fmt.Errorf("unknown lookup kind %q", kind)
	}
}
