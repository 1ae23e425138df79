// Package render turns filtered records into HTML fragments, one renderer per
// dashboard view. Every render fully replaces the container content and an
// empty input renders the view's "no results" message.
package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jaakkos/gwp/internal/domain"
)

// Renderer writes the content of one view container.
type Renderer interface {
	Render(w io.Writer, records []domain.Record) error
}

// Empty-state messages.
const (
	EmptyPlan          = "No hay actividades registradas."
	EmptyHitos         = "No hay hitos registrados con los filtros actuales."
	EmptyObservaciones = "No hay comentarios registrados con los filtros actuales."
	EmptyRepositorio   = "No hay documentos que coincidan con la búsqueda."
	EmptyDocumentos    = "No hay documentos subidos."
	EmptyGantt         = "No hay datos para mostrar. Cargue el Plan Maestro primero."
	EmptyCalendar      = "No hay hitos ni fechas programadas."
	EmptyCalendarRange = "No hay eventos para mostrar (vencidos o futuros)."
)

var funcs = template.FuncMap{
	"f":           func(r domain.Record, key string) string { return r.Text(key) },
	"date":        func(r domain.Record, key string) string { return FormatDate(r.Text(key)) },
	"year":        func(r domain.Record, key string) string { return r.Year(key) },
	"statusClass": StatusClass,
	"initial":     initial,
	"keyPoints":   KeyPoints,
	"tags":        splitTags,
	"more":        func(n int) int { return n - maxKeyPoints },
}

var templates = template.Must(template.New("render").Funcs(funcs).Parse(tableTemplates + repoTemplates + ganttTemplates + calendarTemplates))

// templateRenderer executes a named template over the records, or the empty
// template when there are none.
type templateRenderer struct {
	name  string
	empty string
}

func (t templateRenderer) Render(w io.Writer, records []domain.Record) error {
	if len(records) == 0 {
		return renderEmpty(w, t.name, t.empty)
	}
	if err := templates.ExecuteTemplate(w, t.name, records); err != nil {
		return fmt.Errorf("render %s: %w", t.name, err)
	}
	return nil
}

func renderEmpty(w io.Writer, view, msg string) error {
	if err := templates.ExecuteTemplate(w, "empty", msg); err != nil {
		return fmt.Errorf("render %s: %w", view, err)
	}
	return nil
}

// Renderers of the list views.
var (
	Plan          Renderer = templateRenderer{name: "plan", empty: EmptyPlan}
	Hitos         Renderer = templateRenderer{name: "hitos", empty: EmptyHitos}
	Observaciones Renderer = templateRenderer{name: "observaciones", empty: EmptyObservaciones}
	Documentos    Renderer = templateRenderer{name: "documentos", empty: EmptyDocumentos}
	Repositorio   Renderer = templateRenderer{name: "repositorio", empty: EmptyRepositorio}
)

// ForCollection returns the list renderer of a collection.
func ForCollection(c domain.Collection) (Renderer, error) {
	switch c {
	case domain.CollectionPlan:
		return Plan, nil
	case domain.CollectionHitos:
		return Hitos, nil
	case domain.CollectionObservaciones:
		return Observaciones, nil
	case domain.CollectionDocumentos:
		return Documentos, nil
	case domain.CollectionRepositorio:
		return Repositorio, nil
	}
	return nil, fmt.Errorf("no renderer for collection %q", c)
}

// FormatDate formats a backend date as dd/mm/yyyy. Empty input gives "-" and
// unparsable input is returned as is.
func FormatDate(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	t, ok := domain.Record{"d": s}.Time("d")
	if !ok {
		return s
	}
	return t.Format("02/01/2006")
}

// StatusClass maps a plan status to its badge class.
func StatusClass(status string) string {
	switch status {
	case "En Progreso":
		return "progreso"
	case "Completado", "Listo":
		return "listo"
	}
	return "pendiente"
}

func initial(name string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

const maxKeyPoints = 3

var pgArrayItem = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|([^",\s][^",]*)`)

// KeyPoints parses a key-points field stored as a JSON array, a Postgres
// array literal or plain text with one point per line.
func KeyPoints(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var points []string
	if err := json.Unmarshal([]byte(raw), &points); err == nil {
		return nonEmpty(points)
	}
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		for _, m := range pgArrayItem.FindAllStringSubmatch(raw[1:len(raw)-1], -1) {
			if m[1] != "" {
				points = append(points, strings.ReplaceAll(m[1], `\"`, `"`))
			} else {
				points = append(points, m[2])
			}
		}
		return nonEmpty(points)
	}
	return nonEmpty(strings.Split(raw, "\n"))
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
