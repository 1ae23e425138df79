package render

import (
	"fmt"
	"io"
	"time"

	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/stats"
)

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// Calendar renders plan deliveries and milestones. The plan records are
// passed to Render; milestones come from Hitos.
type Calendar struct {
	Hitos   []domain.Record
	Now     time.Time
	History bool // include months before the current one
	Agenda  bool // list view instead of month grids
}

type calDay struct {
	Day    int
	Today  bool
	Events []stats.Event
}

type calMonth struct {
	Title  string
	Weeks  [][]*calDay // nil cells pad the first and last week
	Events []stats.Event
}

// Render writes month grids, or the agenda when Agenda is set.
func (c Calendar) Render(w io.Writer, plan []domain.Record) error {
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	events := stats.Events(plan, c.Hitos)
	if len(events) == 0 {
		return renderEmpty(w, "calendar", EmptyCalendar)
	}
	events = stats.FromMonth(events, now, c.History)
	if len(events) == 0 {
		return renderEmpty(w, "calendar", EmptyCalendarRange)
	}

	var months []calMonth
	for _, m := range stats.ByMonth(events) {
		months = append(months, buildMonth(m, now))
	}
	name := "calendarMonths"
	if c.Agenda {
		name = "calendarAgenda"
	}
	if err := templates.ExecuteTemplate(w, name, months); err != nil {
		return fmt.Errorf("render calendar: %w", err)
	}
	return nil
}

func buildMonth(m stats.Month, now time.Time) calMonth {
	first := m.Events[0].Date
	start := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)
	days := start.AddDate(0, 1, -1).Day()
	today := now.UTC()

	cells := make([]*calDay, days)
	for i := range cells {
		cells[i] = &calDay{
			Day:   i + 1,
			Today: today.Year() == start.Year() && today.Month() == start.Month() && today.Day() == i+1,
		}
	}
	for _, e := range m.Events {
		d := cells[e.Date.Day()-1]
		d.Events = append(d.Events, e)
	}

	// Weeks start on Monday.
	lead := (int(start.Weekday()) + 6) % 7
	row := make([]*calDay, lead, 7)
	var weeks [][]*calDay
	for _, d := range cells {
		row = append(row, d)
		if len(row) == 7 {
			weeks = append(weeks, row)
			row = make([]*calDay, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, nil)
		}
		weeks = append(weeks, row)
	}
	return calMonth{
		Title:  fmt.Sprintf("%s %d", monthNames[start.Month()-1], start.Year()),
		Weeks:  weeks,
		Events: m.Events,
	}
}

const calendarTemplates = `
{{define "calendarEvent"}}<div class="cal-event {{.Type}}" data-id="{{.RecordID}}" title="{{.Title}}"><span class="code">{{.Code}}</span> {{.Title}}</div>{{end}}

{{define "calendarMonths"}}{{range .}}<section class="cal-month">
<h3>{{.Title}}</h3>
<table class="cal-grid">
<thead><tr><th>Lun</th><th>Mar</th><th>Mié</th><th>Jue</th><th>Vie</th><th>Sáb</th><th>Dom</th></tr></thead>
<tbody>
{{range .Weeks}}<tr>{{range .}}{{if .}}<td class="cal-day{{if .Today}} today{{end}}"><span class="num">{{.Day}}</span>{{range .Events}}{{template "calendarEvent" .}}{{end}}</td>{{else}}<td class="cal-pad"></td>{{end}}{{end}}</tr>
{{end}}</tbody>
</table>
</section>
{{end}}{{end}}

{{define "calendarAgenda"}}<div class="cal-agenda">
{{range .}}<h3>{{.Title}}</h3>
<ul>
{{range .Events}}<li><span class="date">{{.Date.Format "02/01"}}</span> {{template "calendarEvent" .}}</li>
{{end}}</ul>
{{end}}</div>{{end}}
`
