// Package domain holds the GWP dashboard entities: records, collections,
// facets and store events. It has no dependencies on other packages.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one plan activity, milestone, observation or repository document
// as a flat field-value mapping. Values are primitives decoded from JSON
// (string, float64, bool) or nil.
type Record map[string]any

// Text returns the field as a display string. Absent and nil fields are "".
func (r Record) Text(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// ID returns the numeric "id" field, or 0 when absent or not numeric.
func (r Record) ID() int {
	switch x := r["id"].(type) {
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(x))
		return n
	}
	return 0
}

// dateLayouts are the date encodings the backend emits: ISO dates, ISO
// timestamps and the RFC 1123 form of Flask's JSON encoder.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
}

// Time parses a date field. Dates without a zone are taken as UTC.
func (r Record) Time(key string) (time.Time, bool) {
	s := strings.TrimSpace(r.Text(key))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Year returns the four-digit year of a date field: the parsed year when the
// value is a known date layout, else its leading four digits, else "".
func (r Record) Year(key string) string {
	if t, ok := r.Time(key); ok {
		return strconv.Itoa(t.Year())
	}
	s := strings.TrimSpace(r.Text(key))
	if len(s) < 4 {
		return ""
	}
	for _, c := range s[:4] {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return s[:4]
}

// Collection names one REST collection served by the GWP backend.
type Collection string

const (
	CollectionPlan          Collection = "plan"
	CollectionHitos         Collection = "hitos"
	CollectionRepositorio   Collection = "repositorio"
	CollectionObservaciones Collection = "observaciones"
	CollectionDocumentos    Collection = "documentos"
)

var collectionPaths = map[Collection]string{
	CollectionPlan:          "/plan-maestro",
	CollectionHitos:         "/hitos",
	CollectionRepositorio:   "/repositorio",
	CollectionObservaciones: "/observaciones",
	CollectionDocumentos:    "/documentos",
}

// Collections returns every known collection in a stable order.
func Collections() []Collection {
	return []Collection{
		CollectionPlan,
		CollectionHitos,
		CollectionRepositorio,
		CollectionObservaciones,
		CollectionDocumentos,
	}
}

// Path returns the REST path of the collection, e.g. "/plan-maestro".
func (c Collection) Path() string {
	return collectionPaths[c]
}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := collectionPaths[c]; !ok {
		return "", fmt.Errorf("unknown collection %q", s)
	}
	return c, nil
}

// EventKind identifies a store event. Each collection has exactly one
// "<collection>:updated" kind.
type EventKind string

const (
	EventPlanUpdated          EventKind = "plan:updated"
	EventHitosUpdated         EventKind = "hitos:updated"
	EventRepositorioUpdated   EventKind = "repositorio:updated"
	EventObservacionesUpdated EventKind = "observaciones:updated"
	EventDocumentosUpdated    EventKind = "documentos:updated"
)

// UpdatedEvent returns the update event kind for a collection.
func UpdatedEvent(c Collection) EventKind {
	return EventKind(string(c) + ":updated")
}

// CollectionUpdated is the payload of every "<collection>:updated" event.
type CollectionUpdated struct {
	Collection Collection
	Records    []Record
}

// Facet is a filterable field bound to one UI control.
type Facet struct {
	ID    string `yaml:"id" json:"id"`       // control identifier, e.g. "filterProduct"
	Key   string `yaml:"key" json:"key"`     // record field, e.g. "product_code"
	Label string `yaml:"label" json:"label"` // chip label; defaults to the ID
	// Split, when set, splits multi-valued fields (comma separated tags,
	// institutions) before collecting options.
	Split string `yaml:"split,omitempty" json:"split,omitempty"`
	// Transform derives the compared value from the field. "year" reduces a
	// date to its four-digit year.
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// TransformYear reduces a date field to its year.
const TransformYear = "year"

// Value returns the facet's value for r after Transform.
func (f Facet) Value(r Record) string {
	if f.Transform == TransformYear {
		return r.Year(f.Key)
	}
	return r.Text(f.Key)
}

// DisplayLabel returns Label, falling back to the control ID.
func (f Facet) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// Search configures the free-text search box of a view.
type Search struct {
	ID   string   `yaml:"id" json:"id"`
	Keys []string `yaml:"keys" json:"keys"`
}

// FilterSet is the ordered list of facets of a view plus an optional search.
type FilterSet struct {
	Facets []Facet `yaml:"facets" json:"facets"`
	Search *Search `yaml:"search,omitempty" json:"search,omitempty"`
}

// Selection is a snapshot of the current control values of a view.
type Selection struct {
	Values map[string]string // facet ID -> active value ("" = inactive)
	Term   string            // free-text search term
}

// Value returns the active value for a facet ID.
func (s Selection) Value(id string) string {
	if s.Values == nil {
		return ""
	}
	return s.Values[id]
}
