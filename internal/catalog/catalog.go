// Package catalog supplies the list of objects a resolution run covers.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"neodisc/internal/domain"
)

// Source lists the objects to resolve.
type Source interface {
	Objects(ctx context.Context) ([]domain.Object, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context) ([]domain.Object, error)

func (f Func) Objects(ctx context.Context) ([]domain.Object, error) { return f(ctx) }

// Static is a fixed object list.
type Static []domain.Object

func (s Static) Objects(context.Context) ([]domain.Object, error) {
	return append([]domain.Object(nil), s...), nil
}

// QueryFunc is the shape of a store catalog query filtered by perihelion.
type QueryFunc func(ctx context.Context, maxQ float64) ([]domain.Object, error)

// Perihelion binds a store query to a q limit.
func Perihelion(query QueryFunc, maxQ float64) Source {
	return Func(func(ctx context.Context) ([]domain.Object, error) {
		return query(ctx, maxQ)
	})
}

type fileFormat struct {
	Objects []domain.Object `yaml:"objects"`
}

// Parse decodes a YAML object list:
//
//	objects:
//	  - is_numbered: true
//	    permanent_id: "99942"
//	    cross_provisional_id: 2004 MN4
//	  - provisional_id: 2024 AA1
func Parse(data []byte) (Static, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range f.Objects {
		o := &f.Objects[i]
		o.PermanentID = strings.TrimSpace(o.PermanentID)
		o.ProvisionalID = strings.TrimSpace(o.ProvisionalID)
		o.CrossProvisionalID = strings.TrimSpace(o.CrossProvisionalID)
		// a bare permanent id implies a numbered object
		if o.PermanentID != "" && o.ProvisionalID == "" {
			o.IsNumbered = true
		}
	}
	return Static(f.Objects), nil
}

func FromFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
