// Package catalog maps human service names to Square catalog variation IDs
// and fixed per-service durations. The catalog is immutable once built and is
// injected into the engines, so tests can run against fixture catalogs.
package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultDuration is used when a variation ID has no configured duration.
// Permissive by design: an unknown service books a standard 30-minute slot
// instead of failing the call.
const DefaultDuration = 30 * time.Minute

// Service is one bookable service.
type Service struct {
	Name        string        `json:"name"`
	VariationID string        `json:"variation_id"`
	Duration    time.Duration `json:"duration_ms"`
}

// Catalog is an immutable name/ID/duration lookup.
type Catalog struct {
	services  []Service
	byName    map[string]Service
	byID      map[string]Service
	defaultID string
	maxDur    time.Duration
}

// New builds a catalog. defaultName selects the service assumed when a caller
// does not specify one; it must name a listed service.
func New(services []Service, defaultName string) (*Catalog, error) {
	if len(services) == 0 {
		return nil, fmt.Errorf("catalog: no services configured")
	}
	c := &Catalog{
		services: services,
		byName:   make(map[string]Service, len(services)),
		byID:     make(map[string]Service, len(services)),
	}
	for _, s := range services {
		if s.Name == "" || s.VariationID == "" {
			return nil, fmt.Errorf("catalog: service needs name and variation_id: %+v", s)
		}
		c.byName[s.Name] = s
		c.byID[s.VariationID] = s
		if s.Duration > c.maxDur {
			c.maxDur = s.Duration
		}
	}
	def, ok := c.byName[defaultName]
	if !ok {
		return nil, fmt.Errorf("catalog: default service %q not in catalog", defaultName)
	}
	c.defaultID = def.VariationID
	return c, nil
}

// Builtin returns the shop's standing catalog.
func Builtin() *Catalog {
	c, err := New([]Service{
		{Name: "Regular Haircut", VariationID: "7XPUHGDLY4N3H2OWTHMIABKF", Duration: 30 * time.Minute},
		{Name: "Beard Trim", VariationID: "SPUX6LRBS6RHFBX3MSRASG2J", Duration: 30 * time.Minute},
		{Name: "Beard Sculpt", VariationID: "UH5JRVCJGAB2KISNBQ7KMVVQ", Duration: 30 * time.Minute},
		{Name: "Ear Waxing", VariationID: "ALZZEN4DO6JCNMC6YPXN6DPH", Duration: 10 * time.Minute},
		{Name: "Nose Waxing", VariationID: "VVGK7I7L6BHTG7LFKLAIRHBZ", Duration: 10 * time.Minute},
		{Name: "Eyebrow Waxing", VariationID: "3TV5CVRXCB62BWIWVY6OCXIC", Duration: 10 * time.Minute},
		{Name: "Paraffin", VariationID: "7ND6OIFTRLJEPMDBBI3B3ELT", Duration: 30 * time.Minute},
		{Name: "Gold", VariationID: "7UKWUIF4CP7YR27FI52DWPEN", Duration: 90 * time.Minute},
		{Name: "Silver", VariationID: "7PFUQVFMALHIPDAJSYCBKBYV", Duration: 60 * time.Minute},
	}, "Regular Haircut")
	if err != nil {
		panic(err)
	}
	return c
}

type serviceJSON struct {
	Name        string `json:"name"`
	VariationID string `json:"variation_id"`
	DurationMs  int64  `json:"duration_ms"`
	Default     bool   `json:"default,omitempty"`
}

// LoadJSON builds a catalog from a JSON array, used to override the built-in
// catalog via configuration. Exactly one entry may be flagged default; when
// none is, the first entry is the default.
func LoadJSON(data []byte) (*Catalog, error) {
	var entries []serviceJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("catalog: parse JSON: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: empty JSON catalog")
	}
	services := make([]Service, 0, len(entries))
	defaultName := entries[0].Name
	for _, e := range entries {
		services = append(services, Service{
			Name:        e.Name,
			VariationID: e.VariationID,
			Duration:    time.Duration(e.DurationMs) * time.Millisecond,
		})
		if e.Default {
			defaultName = e.Name
		}
	}
	return New(services, defaultName)
}

// VariationID resolves a human service name.
func (c *Catalog) VariationID(name string) (string, bool) {
	s, ok := c.byName[name]
	return s.VariationID, ok
}

// NameFor resolves a variation ID back to its human name.
func (c *Catalog) NameFor(variationID string) string {
	if s, ok := c.byID[variationID]; ok {
		return s.Name
	}
	return "Unknown Service"
}

// Duration returns the fixed duration for a variation ID, falling back to
// DefaultDuration for unknown IDs.
func (c *Catalog) Duration(variationID string) time.Duration {
	if s, ok := c.byID[variationID]; ok && s.Duration > 0 {
		return s.Duration
	}
	return DefaultDuration
}

// TotalDuration sums the durations of a set of variation IDs.
func (c *Catalog) TotalDuration(variationIDs []string) time.Duration {
	var total time.Duration
	for _, id := range variationIDs {
		total += c.Duration(id)
	}
	return total
}

// DefaultVariationID is the service assumed when a caller names none.
func (c *Catalog) DefaultVariationID() string {
	return c.defaultID
}

// ValidNames lists the bookable service names in catalog order.
func (c *Catalog) ValidNames() []string {
	names := make([]string, 0, len(c.services))
	for _, s := range c.services {
		names = append(names, s.Name)
	}
	return names
}

// MaxDuration is the longest configured service duration, used to size the
// overlap-check lookahead.
func (c *Catalog) MaxDuration() time.Duration {
	if c.maxDur < DefaultDuration {
		return DefaultDuration
	}
	return c.maxDur
}
