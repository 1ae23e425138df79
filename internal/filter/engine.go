// Package filter implements the cascading facet filter shared by every list
// view of the dashboard.
//
// Compute intersects all active facets and the free-text search using
// case-insensitive substring containment. For each facet it also computes the
// options still reachable under every other active facet, so a facet never
// narrows its own option list.
package filter

import (
	"sort"
	"strings"

	"github.com/jaakkos/gwp/internal/domain"
)

// Result is the output of Compute.
type Result struct {
	Filtered []domain.Record     `json:"filtered"`
	Options  map[string][]string `json:"options"` // facet ID -> sorted options
}

// Compute filters records by the selection and computes the cascading option
// set of every facet. It is a pure function of its inputs.
func Compute(records []domain.Record, set domain.FilterSet, sel domain.Selection) Result {
	res := Result{
		Filtered: []domain.Record{},
		Options:  make(map[string][]string, len(set.Facets)),
	}
	for _, f := range set.Facets {
		res.Options[f.ID] = []string{}
	}
	if len(records) == 0 {
		return res
	}

	term := strings.ToLower(sel.Term)
	for _, r := range records {
		if matches(r, set, sel, term, "") {
			res.Filtered = append(res.Filtered, r)
		}
	}

	for _, target := range set.Facets {
		var reachable []domain.Record
		for _, r := range records {
			if matches(r, set, sel, term, target.ID) {
				reachable = append(reachable, r)
			}
		}
		res.Options[target.ID] = UniqueValues(reachable, target)
	}
	return res
}

// matches reports whether r passes the search term and every active facet
// except the one whose ID equals skip.
func matches(r domain.Record, set domain.FilterSet, sel domain.Selection, term, skip string) bool {
	if term != "" && set.Search != nil && len(set.Search.Keys) > 0 {
		found := false
		for _, k := range set.Search.Keys {
			if strings.Contains(strings.ToLower(r.Text(k)), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range set.Facets {
		if f.ID == skip {
			continue
		}
		val := sel.Value(f.ID)
		if val == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(f.Value(r)), strings.ToLower(val)) {
			return false
		}
	}
	return true
}

// UniqueValues returns the sorted distinct non-empty trimmed values of the
// facet's field, after its Transform, across records.
func UniqueValues(records []domain.Record, f domain.Facet) []string {
	seen := make(map[string]struct{})
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	for _, r := range records {
		v := f.Value(r)
		if f.Split == "" {
			add(v)
			continue
		}
		for _, part := range strings.Split(v, f.Split) {
			add(part)
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Reconcile returns the value a select control keeps after its options are
// re-populated: the previous value when still offered, else "".
func Reconcile(previous string, options []string) string {
	if previous == "" {
		return ""
	}
	for _, o := range options {
		if o == previous {
			return previous
		}
	}
	return ""
}

// Reconciled returns a copy of sel with every facet value passed through
// Reconcile against the options of res. The search term is kept as is.
func Reconciled(sel domain.Selection, set domain.FilterSet, res Result) domain.Selection {
	out := domain.Selection{Values: make(map[string]string, len(set.Facets)), Term: sel.Term}
	for _, f := range set.Facets {
		out.Values[f.ID] = Reconcile(sel.Value(f.ID), res.Options[f.ID])
	}
	return out
}
