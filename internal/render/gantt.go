package render

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jaakkos/gwp/internal/domain"
)

// Gantt renders plan activities as bars over one calendar year.
type Gantt struct {
	// Year is the timeline year; zero uses the year of the earliest start.
	Year int
}

type ganttRow struct {
	Code, Title, Start, End string
	Left, Width             string
}

type ganttData struct {
	Year int
	Rows []ganttRow
}

// Render draws one bar per record that has both fecha_inicio and fecha_fin.
func (g Gantt) Render(w io.Writer, records []domain.Record) error {
	type dated struct {
		r          domain.Record
		start, end time.Time
	}
	var items []dated
	for _, r := range records {
		start, ok1 := r.Time("fecha_inicio")
		end, ok2 := r.Time("fecha_fin")
		if ok1 && ok2 {
			items = append(items, dated{r, start, end})
		}
	}
	if len(items) == 0 {
		return renderEmpty(w, "gantt", EmptyGantt)
	}

	year := g.Year
	if year == 0 {
		year = items[0].start.Year()
		for _, it := range items[1:] {
			if it.start.Year() < year {
				year = it.start.Year()
			}
		}
	}
	yearStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	span := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).Sub(yearStart).Hours()

	data := ganttData{Year: year}
	for _, it := range items {
		left := it.start.Sub(yearStart).Hours() / span * 100
		width := it.end.Sub(it.start).Hours() / span * 100
		data.Rows = append(data.Rows, ganttRow{
			Code:  it.r.Text("activity_code"),
			Title: it.r.Text("task_name"),
			Start: FormatDate(it.r.Text("fecha_inicio")),
			End:   FormatDate(it.r.Text("fecha_fin")),
			Left:  percent(max(0, left)),
			Width: percent(max(1, width)),
		})
	}
	if err := templates.ExecuteTemplate(w, "gantt", data); err != nil {
		return fmt.Errorf("render gantt: %w", err)
	}
	return nil
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

const ganttTemplates = `
{{define "gantt"}}<div class="gantt-wrapper">
<div class="gantt-header"><div class="gantt-label">Actividad</div><div class="gantt-scale">Linea de Tiempo ({{.Year}})</div></div>
{{range .Rows}}<div class="gantt-row">
<div class="gantt-label" title="{{.Title}}">{{.Code}}</div>
<div class="gantt-track"><div class="gantt-bar" style="left:{{.Left}}%;width:{{.Width}}%" title="{{.Title}} ({{.Start}} - {{.End}})"></div></div>
</div>
{{end}}</div>{{end}}
`
