package chat

import (
	"strings"
	"testing"

	"github.com/jaakkos/gwp/internal/domain"
)

func docs(n int) []domain.Record {
	out := make([]domain.Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Record{
			"id":             float64(i),
			"titulo":         "Documento",
			"tipo_documento": "Ley",
			"descripcion":    "Descripción corta",
		})
	}
	return out
}

func TestBuildContext_ListsItems(t *testing.T) {
	records := []domain.Record{
		{"id": float64(12), "titulo": "Ley de Aguas", "tipo_documento": "Ley", "descripcion": "Regula el uso"},
		{"id": float64(13), "titulo": "Informe", "descripcion": ""},
	}
	got := BuildContext(records, 20, 200)
	for _, want := range []string{
		"biblioteca de 2 documentos",
		`- [ID:12] "Ley de Aguas" (Ley): Regula el uso`,
		`- [ID:13] "Informe" (Doc): `,
		"[[ID:id]]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, TruncationMarker) {
		t.Error("nothing should be truncated")
	}
}

func TestBuildContext_MaxItems(t *testing.T) {
	got := BuildContext(docs(5), 3, 0)
	if n := strings.Count(got, "- [ID:"); n != 3 {
		t.Errorf("listed %d items, want 3", n)
	}
	if !strings.Contains(got, "biblioteca de 5 documentos") || !strings.Contains(got, "2 documentos adicionales omitidos") {
		t.Errorf("context should report the omitted documents:\n%s", got)
	}
	if n := strings.Count(BuildContext(docs(5), 0, 0), "- [ID:"); n != 5 {
		t.Errorf("maxItems 0 listed %d items, want all 5", n)
	}
}

func TestBuildContext_TruncatesWithMarker(t *testing.T) {
	long := strings.Repeat("á", 300)
	records := []domain.Record{{"id": float64(1), "titulo": "T", "descripcion": long}}
	got := BuildContext(records, 10, 200)
	want := strings.Repeat("á", 200) + " " + TruncationMarker
	if !strings.Contains(got, want) {
		t.Errorf("expected 200 characters plus marker, got:\n%s", got)
	}
	if strings.Contains(got, strings.Repeat("á", 201)) {
		t.Error("description exceeds the per-item budget")
	}
}

func TestBuildContext_Empty(t *testing.T) {
	got := BuildContext(nil, 20, 200)
	if !strings.Contains(got, "biblioteca de 0 documentos") || strings.Contains(got, "- [ID:") {
		t.Errorf("unexpected empty context:\n%s", got)
	}
}

func TestShouldDeepDive(t *testing.T) {
	for n, want := range map[int]bool{0: false, 1: true, 2: true, 3: false} {
		if got := ShouldDeepDive(docs(n)); got != want {
			t.Errorf("ShouldDeepDive(%d docs) = %v, want %v", n, got, want)
		}
	}
}

func TestBuildDeepDiveContext(t *testing.T) {
	full := []domain.Record{
		{
			"id":                float64(7),
			"titulo":            "Plan Hídrico",
			"tipo_documento":    "Estudio",
			"fecha_publicacion": "2021-05-03",
			"fuente_origen":     "MOP",
			"tipo_fuente":       "Pública",
			"file_content":      strings.Repeat("x", 50),
		},
		{"id": float64(8)},
	}
	got := BuildDeepDiveContext(full, "¿Qué dice?", 20)
	for _, want := range []string{
		"=== INICIO DOCUMENTO ID:7 ===",
		"TÍTULO: Plan Hídrico",
		"AÑO: 2021",
		"FUENTE: MOP (Pública)",
		"ETIQUETAS: Ninguna",
		strings.Repeat("x", 20) + "\n\n" + TruncationMarker,
		"=== FIN DOCUMENTO ID:7 ===",
		"TÍTULO: Sin título",
		"AÑO: N/A",
		noFileContent,
		"[SUGERENCIA:",
		`Pregunta del Usuario: "¿Qué dice?"`,
		"2 documento(s)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("deep-dive context missing %q", want)
		}
	}
}

func TestBuildDeepDiveContext_RFC1123Year(t *testing.T) {
	full := []domain.Record{
		{"id": float64(3), "fecha_publicacion": "Mon, 01 Jan 2024 00:00:00 GMT"},
		{"id": float64(4), "fecha_publicacion": "pendiente"},
	}
	got := BuildDeepDiveContext(full, "x", 100)
	if !strings.Contains(got, "AÑO: 2024\n") {
		t.Errorf("RFC 1123 date should give its year:\n%s", got)
	}
	if strings.Contains(got, "AÑO: Mon,") || strings.Contains(got, "AÑO: pend") {
		t.Errorf("year taken from raw text:\n%s", got)
	}
	if strings.Count(got, "AÑO: N/A") != 1 {
		t.Errorf("undated document should show N/A:\n%s", got)
	}
}
