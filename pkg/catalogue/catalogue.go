// Package catalogue provides read-only access to the bundled monument and region data.
package catalogue

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"bharatvista/pkg/model"
)

// AllStates is the search filter sentinel meaning "no state restriction".
const AllStates = "All"

// ErrInvalidCatalogue is wrapped by every validation failure during construction.
var ErrInvalidCatalogue = errors.New("invalid catalogue")

//go:embed data/monuments.yaml
var bundled []byte

type source struct {
	Monuments []model.Monument `yaml:"monuments"`
	States    []model.Region   `yaml:"states"`
}

// Catalogue is an immutable, declaration-ordered collection of monuments and regions.
// It is safe for concurrent use since nothing mutates it after construction.
type Catalogue struct {
	monuments []*model.Monument
	byID      map[string]*model.Monument
	regions   []model.Region
	bySlug    map[string]int
}

// Load parses the bundled catalogue.
func Load() (*Catalogue, error) {
	return Parse(bundled)
}

// Parse builds a catalogue from YAML data in the bundled layout.
func Parse(data []byte) (*Catalogue, error) {
	var src source
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}
	return New(src.Monuments, src.States)
}

// New builds a catalogue from records, preserving their order.
func New(monuments []model.Monument, regions []model.Region) (*Catalogue, error) {
	c := &Catalogue{
		monuments: make([]*model.Monument, 0, len(monuments)),
		byID:      make(map[string]*model.Monument, len(monuments)),
		regions:   make([]model.Region, 0, len(regions)),
		bySlug:    make(map[string]int, len(regions)),
	}

	for i := range monuments {
		m := monuments[i]
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("%w: monument #%d has no id", ErrInvalidCatalogue, i)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate monument id %q", ErrInvalidCatalogue, m.ID)
		}
		if !m.Category.Valid() {
			return nil, fmt.Errorf("%w: monument %q has unknown category %q", ErrInvalidCatalogue, m.ID, m.Category)
		}
		c.monuments = append(c.monuments, &m)
		c.byID[m.ID] = &m
	}

	for i, r := range regions {
		if r.Slug == "" || r.Name == "" {
			return nil, fmt.Errorf("%w: region #%d needs name and slug", ErrInvalidCatalogue, i)
		}
		if _, dup := c.bySlug[r.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate region slug %q", ErrInvalidCatalogue, r.Slug)
		}
		r.MonumentCount = 0
		c.bySlug[r.Slug] = len(c.regions)
		c.regions = append(c.regions, r)
	}

	return c, nil
}

// Len returns the number of monuments.
func (c *Catalogue) Len() int { return len(c.monuments) }

// All returns every monument in declaration order.
func (c *Catalogue) All() []*model.Monument {
	return append([]*model.Monument(nil), c.monuments...)
}

// Get returns the monument with the given id. Absence is reported by ok=false.
func (c *Catalogue) Get(id string) (*model.Monument, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Featured returns featured monuments in declaration order.
func (c *Catalogue) Featured() []*model.Monument {
	return c.filter(func(m *model.Monument) bool { return m.Featured })
}

// ByState returns monuments whose state equals name exactly.
func (c *Catalogue) ByState(name string) []*model.Monument {
	return c.filter(func(m *model.Monument) bool { return m.State == name })
}

// ByCategory returns monuments of the given category in declaration order.
func (c *Catalogue) ByCategory(cat model.Category) []*model.Monument {
	return c.filter(func(m *model.Monument) bool { return m.Category == cat })
}

// StateBySlug returns the region with the given slug, with a freshly derived count.
func (c *Catalogue) StateBySlug(slug string) (*model.Region, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return nil, false
	}
	r := c.withCount(c.regions[i])
	return &r, true
}

// States returns all regions in declaration order. Monument counts are derived on
// every call so they can never drift from ByState.
func (c *Catalogue) States() []model.Region {
	out := make([]model.Region, len(c.regions))
	for i, r := range c.regions {
		out[i] = c.withCount(r)
	}
	return out
}

func (c *Catalogue) withCount(r model.Region) model.Region {
	r.MonumentCount = len(c.ByState(r.Name))
	return r
}

// StateNames returns the search filter options: AllStates followed by the distinct
// monument states in order of first appearance.
func (c *Catalogue) StateNames() []string {
	names := []string{AllStates}
	seen := make(map[string]bool)
	for _, m := range c.monuments {
		if !seen[m.State] {
			seen[m.State] = true
			names = append(names, m.State)
		}
	}
	return names
}

// Search matches query case-insensitively against name or city. An empty or
// AllStates stateFilter disables the state restriction; an empty query matches all.
func (c *Catalogue) Search(query, stateFilter string) []*model.Monument {
	folder := cases.Fold()
	q := folder.String(query)
	restrict := stateFilter != "" && stateFilter != AllStates

	return c.filter(func(m *model.Monument) bool {
		if restrict && m.State != stateFilter {
			return false
		}
		if q == "" {
			return true
		}
		return strings.Contains(folder.String(m.Name), q) || strings.Contains(folder.String(m.City), q)
	})
}

// Nearby returns monuments within radiusKm of the point, nearest first.
// A non-positive limit returns every match.
func (c *Catalogue) Nearby(lat, lng, radiusKm float64, limit int) []*model.Monument {
	origin := orb.Point{lng, lat}
	type hit struct {
		m    *model.Monument
		dist float64
	}
	var hits []hit
	for _, m := range c.monuments {
		d := geo.DistanceHaversine(origin, orb.Point{m.Location.Lng, m.Location.Lat})
		if d <= radiusKm*1000 {
			hits = append(hits, hit{m, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*model.Monument, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out
}

// Related returns up to limit featured monuments other than id, for "more to explore".
func (c *Catalogue) Related(id string, limit int) []*model.Monument {
	out := c.filter(func(m *model.Monument) bool { return m.Featured && m.ID != id })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (c *Catalogue) filter(keep func(*model.Monument) bool) []*model.Monument {
	out := make([]*model.Monument, 0)
	for _, m := range c.monuments {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}
