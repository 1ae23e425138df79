package stats

import (
	"sort"
	"time"

	"github.com/jaakkos/gwp/internal/domain"
)

// Event types.
const (
	EventDelivery  = "entrega"
	EventMilestone = "hito"
)

// Event is one dated entry of the calendar.
type Event struct {
	Date     time.Time `json:"date"`
	Title    string    `json:"title"`
	Code     string    `json:"code"`
	Type     string    `json:"type"`
	RecordID int       `json:"record_id"`
}

// MonthKey returns "YYYY-MM" of the event date.
func (e Event) MonthKey() string {
	return e.Date.Format("2006-01")
}

// Events builds calendar events from plan end dates and milestone estimated
// dates, sorted by date. Records without a parsable date are skipped.
func Events(plan, hitos []domain.Record) []Event {
	events := []Event{}
	for _, p := range plan {
		if d, ok := p.Time("fecha_fin"); ok {
			events = append(events, Event{
				Date:     d,
				Title:    p.Text("task_name"),
				Code:     p.Text("activity_code"),
				Type:     EventDelivery,
				RecordID: p.ID(),
			})
		}
	}
	for _, h := range hitos {
		if d, ok := h.Time("fecha_estimada"); ok {
			code := h.Text("activity_code")
			if code == "" {
				code = "HITO"
			}
			events = append(events, Event{
				Date:     d,
				Title:    h.Text("nombre"),
				Code:     code,
				Type:     EventMilestone,
				RecordID: h.ID(),
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events
}

// FromMonth drops events in months before now's month unless history is set.
func FromMonth(events []Event, now time.Time, history bool) []Event {
	if history {
		return events
	}
	current := now.UTC().Format("2006-01")
	out := []Event{}
	for _, e := range events {
		if e.MonthKey() >= current {
			out = append(out, e)
		}
	}
	return out
}

// Month groups the events of one calendar month.
type Month struct {
	Key    string  `json:"key"` // YYYY-MM
	Events []Event `json:"events"`
}

// ByMonth groups sorted events by month, in month order.
func ByMonth(events []Event) []Month {
	var months []Month
	for _, e := range events {
		k := e.MonthKey()
		if n := len(months); n > 0 && months[n-1].Key == k {
			months[n-1].Events = append(months[n-1].Events, e)
			continue
		}
		months = append(months, Month{Key: k, Events: []Event{e}})
	}
	return months
}
