// Package stats derives the control-panel figures (KPIs, status breakdown,
// upcoming deadlines) and the calendar events from the plan and milestone
// collections. Everything here is a pure function of its inputs.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/gwp/internal/domain"
)

const (
	topProducts    = 8
	upcomingLimit  = 5
	recentLimit    = 5
	alertWindow    = 7 * 24 * time.Hour
	upcomingWindow = 30 * 24 * time.Hour
	noProduct      = "Sin Producto"
	defaultStatus  = "PENDIENTE"
)

// IsDone reports whether a plan status counts as finished.
func IsDone(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETADO", "FINALIZADO", "LISTO":
		return true
	}
	return false
}

// IsInProgress reports whether a plan status counts as under way.
func IsInProgress(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "EN PROGRESO", "EJECUCIÓN", "EJECUCION":
		return true
	}
	return false
}

// Count is one bar of a breakdown.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary is the control-panel view of the plan.
type Summary struct {
	Total        int             `json:"total"`
	Done         int             `json:"done"`
	InProgress   int             `json:"in_progress"`
	Milestones   int             `json:"milestones"`
	ProgressPct  float64         `json:"progress_pct"`
	ByStatus     []Count         `json:"by_status"`
	ByProduct    []Count         `json:"by_product"`
	DueThisWeek  int             `json:"due_this_week"`
	DeadlineHigh bool            `json:"deadline_high"` // more than 3 due this week
	Upcoming     []domain.Record `json:"upcoming"`
	Recent       []domain.Record `json:"recent"`
}

// Summarize computes the summary of plan activities as of now.
func Summarize(plan, hitos []domain.Record, now time.Time) Summary {
	s := Summary{
		Total:      len(plan),
		Milestones: len(hitos),
		Upcoming:   []domain.Record{},
		Recent:     []domain.Record{},
	}
	statusCounts := make(map[string]int)
	productCounts := make(map[string]int)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var upcoming []domain.Record

	for _, r := range plan {
		status := r.Text("status")
		done := IsDone(status)
		if done {
			s.Done++
		} else if IsInProgress(status) {
			s.InProgress++
		}

		if status == "" {
			status = defaultStatus
		}
		statusCounts[status]++
		productCounts[productOf(r)]++

		end, ok := r.Time("fecha_fin")
		if !ok || done {
			continue
		}
		if !end.Before(now) && !end.After(now.Add(alertWindow)) {
			s.DueThisWeek++
		}
		if !end.Before(today) && !end.After(today.Add(upcomingWindow)) {
			upcoming = append(upcoming, r)
		}
	}

	if s.Total > 0 {
		s.ProgressPct = float64(s.Done) / float64(s.Total) * 100
	}
	s.DeadlineHigh = s.DueThisWeek > 3
	s.ByStatus = sortedCounts(statusCounts, 0)
	s.ByProduct = sortedCounts(productCounts, topProducts)

	sort.SliceStable(upcoming, func(i, j int) bool {
		a, _ := upcoming[i].Time("fecha_fin")
		b, _ := upcoming[j].Time("fecha_fin")
		return a.Before(b)
	})
	if len(upcoming) > upcomingLimit {
		upcoming = upcoming[:upcomingLimit]
	}
	s.Upcoming = append(s.Upcoming, upcoming...)

	recent := append([]domain.Record(nil), plan...)
	sort.SliceStable(recent, func(i, j int) bool {
		a, _ := recent[i].Time("created_at")
		b, _ := recent[j].Time("created_at")
		return a.After(b)
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	s.Recent = append(s.Recent, recent...)
	return s
}

func productOf(r domain.Record) string {
	for _, k := range []string{"product_code", "product", "component"} {
		if v := strings.TrimSpace(r.Text(k)); v != "" {
			return v
		}
	}
	return noProduct
}

// sortedCounts orders by count descending, then label; limit <= 0 keeps all.
func sortedCounts(m map[string]int, limit int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
