package engine

import (
	"context"
	"errors"
	"fmt"

	"neodisc/internal/domain"
	"neodisc/internal/obsindex"
)

// ErrNoDiscovery means no discovery-flagged observation exists under any
// candidate key. It is an expected outcome that lands in the gap report.
var ErrNoDiscovery = errors.New("no discovery observation")

// Locator finds the discovery observation of an object.
type Locator struct {
	Index obsindex.Index
}

// Locate queries each key separately, keeps discovery-flagged observations,
// merges them by id and returns the earliest.
func (l Locator) Locate(ctx context.Context, keys []domain.CandidateKey) (domain.Observation, error) {
	var (
		found bool
		best  domain.Observation
		seen  = make(map[int64]struct{})
	)
	for _, key := range keys {
		obs, err := obsindex.LookupKey(ctx, l.Index, key)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("locate %s: %w", key, err)
		}
		for _, o := range obs {
			if !o.Discovery {
				continue
			}
			if _, dup := seen[o.ID]; dup {
				continue
			}
			seen[o.ID] = struct{}{}
			if !found || o.Before(best) {
				best, found = o, true
			}
		}
	}
	if !found {
		return domain.Observation{}, ErrNoDiscovery
	}
	return best, nil
}
