package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"neodisc/internal/config"
	"neodisc/internal/domain"
	"neodisc/internal/obsindex"
)

// DefaultWindow bounds tracklet membership around the discovery time.
// Some submitters reuse a tracklet id across nights or weeks.
const DefaultWindow = 12 * time.Hour

// Assembler gathers the observations sharing the discovery observation's
// tracklet.
type Assembler struct {
	Index obsindex.Index
	// Window is the inclusive half-width around the discovery time;
	// zero means DefaultWindow.
	Window time.Duration
	// Source is config.SourceKeys (query every candidate key) or
	// config.SourceTracklet (query the tracklet id directly). Empty means
	// keys.
	Source string
}

func (a Assembler) window() time.Duration {
	if a.Window > 0 {
		return a.Window
	}
	return DefaultWindow
}

// Assemble returns the discovery tracklet sorted by time then id. It is
// never empty: without a tracklet id, or when no lookup returns the
// discovery observation itself, the discovery observation is a member.
func (a Assembler) Assemble(ctx context.Context, keys []domain.CandidateKey, disc domain.Observation) ([]domain.Observation, error) {
	if disc.TrackletID == "" {
		return []domain.Observation{disc}, nil
	}
	members := map[int64]domain.Observation{disc.ID: disc}
	keep := func(obs []domain.Observation) {
		for _, o := range obs {
			if o.TrackletID != disc.TrackletID || !a.inWindow(o, disc) {
				continue
			}
			if _, dup := members[o.ID]; !dup {
				members[o.ID] = o
			}
		}
	}
	switch a.Source {
	case "", config.SourceKeys:
		for _, key := range keys {
			obs, err := obsindex.LookupKey(ctx, a.Index, key)
			if err != nil {
				return nil, fmt.Errorf("assemble %s: %w", key, err)
			}
			keep(obs)
		}
	case config.SourceTracklet:
		obs, err := a.Index.LookupByTracklet(ctx, disc.TrackletID)
		if err != nil {
			return nil, fmt.Errorf("assemble tracklet %s: %w", disc.TrackletID, err)
		}
		keep(obs)
	default:
		return nil, fmt.Errorf("unknown tracklet source %q", a.Source)
	}

	out := make([]domain.Observation, 0, len(members))
	for _, o := range members {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (a Assembler) inWindow(o, disc domain.Observation) bool {
	d := o.Time.Sub(disc.Time)
	if d < 0 {
		d = -d
	}
	return d <= a.window()
}
