// Package chat bridges the dashboard to an external chat-completion endpoint.
// It builds the system prompt from the records in view, sends the turn with
// bounded retry on throttling, and extracts citations and follow-up
// suggestions from the reply.
package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jaakkos/gwp/internal/domain"
)

// TruncationMarker is appended to any text cut to fit the context budget.
const TruncationMarker = "[... CONTENIDO TRUNCADO ...]"

// DeepDiveMaxDocs is the largest document count that triggers deep-dive mode.
const DeepDiveMaxDocs = 2

// DefaultDeepDiveMaxChars bounds the file content of each deep-dive document.
const DefaultDeepDiveMaxChars = 25000

const noFileContent = "(No se pudo extraer texto del archivo físico, básate en los metadatos anteriores)"

// BuildContext returns the system prompt for a question over records. At most
// maxItems records are listed (maxItems <= 0 lists all) and each description
// is cut to maxCharsPerItem characters (<= 0 disables the cut).
func BuildContext(records []domain.Record, maxItems, maxCharsPerItem int) string {
	n := len(records)
	if maxItems > 0 && n > maxItems {
		n = maxItems
	}

	var b strings.Builder
	b.WriteString("Eres un asistente experto en documentos estratégicos de gestión de proyectos.\n")
	fmt.Fprintf(&b, "Tienes acceso a la siguiente biblioteca de %d documentos:\n\n", len(records))
	for _, r := range records[:n] {
		tipo := r.Text("tipo_documento")
		if tipo == "" {
			tipo = "Doc"
		}
		desc := truncate(r.Text("descripcion"), maxCharsPerItem, " ")
		fmt.Fprintf(&b, "- [ID:%d] %q (%s): %s\n", r.ID(), r.Text("titulo"), tipo, desc)
	}
	if n < len(records) {
		fmt.Fprintf(&b, "(%d documentos adicionales omitidos)\n", len(records)-n)
	}
	b.WriteString("\nResponde las consultas del usuario basándote en esta información.\n")
	b.WriteString("Cita los documentos que uses con el formato [[ID:id]].\n")
	b.WriteString("Si la pregunta no está relacionada con los documentos, indica que no tienes esa información.\n")
	b.WriteString("Responde en español de forma concisa y profesional.")
	return b.String()
}

// ShouldDeepDive reports whether docs are few enough to send in full.
func ShouldDeepDive(docs []domain.Record) bool {
	return len(docs) > 0 && len(docs) <= DeepDiveMaxDocs
}

// BuildDeepDiveContext returns the system prompt for an in-depth analysis of
// the full documents. Each "file_content" is cut to maxChars characters.
func BuildDeepDiveContext(docs []domain.Record, question string, maxChars int) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, documentBlock(d, maxChars))
	}

	var b strings.Builder
	b.WriteString("Eres un ANALISTA ESTRATÉGICO SENIOR especializado en auditoría documental profunda.\n")
	fmt.Fprintf(&b, "Estás analizando específicamente %d documento(s) en su totalidad.\n\n", len(docs))
	b.WriteString("CONTEXTO DE LOS DOCUMENTOS:\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString(`
INSTRUCCIONES DE ANÁLISIS PROFUNDO:
1. Cruza el contenido del archivo con los metadatos (fuente, año, tipo, etiquetas).
2. Comienza con una respuesta directa y cita segmentos literales cuando apliquen.
3. Usa el formato de cita [[ID:id]] explícitamente.
4. Señala discrepancias entre la descripción del registro y el contenido real.

FORMATO DE RESPUESTA:
- Usa Markdown (negritas, listas, subtítulos).
- Al final incluye 3 preguntas de seguimiento, una por línea, con este formato exacto:

[SUGERENCIA: ¿Pregunta 1 relacionada con el contenido?]
[SUGERENCIA: ¿Pregunta 2 sobre implicaciones?]
[SUGERENCIA: ¿Pregunta 3 comparativa o de detalle?]
`)
	fmt.Fprintf(&b, "\nPregunta del Usuario: %q\n", question)
	return b.String()
}

func documentBlock(d domain.Record, maxChars int) string {
	content := d.Text("file_content")
	if content == "" {
		content = noFileContent
	}
	content = truncate(content, maxChars, "\n\n")

	year := orDefault(d.Year("fecha_publicacion"), "N/A")

	var b strings.Builder
	fmt.Fprintf(&b, "=== INICIO DOCUMENTO ID:%d ===\n", d.ID())
	fmt.Fprintf(&b, "TÍTULO: %s\n", orDefault(d.Text("titulo"), "Sin título"))
	fmt.Fprintf(&b, "TIPO: %s\n", orDefault(d.Text("tipo_documento"), "No especificado"))
	fmt.Fprintf(&b, "AÑO: %s\n", year)
	fmt.Fprintf(&b, "FUENTE: %s (%s)\n", orDefault(d.Text("fuente_origen"), "N/A"), d.Text("tipo_fuente"))
	fmt.Fprintf(&b, "ETIQUETAS: %s\n", orDefault(d.Text("etiquetas"), "Ninguna"))
	fmt.Fprintf(&b, "DESCRIPCIÓN: %s\n", d.Text("descripcion"))
	fmt.Fprintf(&b, "PUNTOS CLAVE: %s\n", d.Text("puntos_clave"))
	fmt.Fprintf(&b, "RESUMEN LARGO: %s\n", d.Text("resumen_largo"))
	fmt.Fprintf(&b, "ENLACE EXTERNO: %s\n", d.Text("enlace_externo"))
	fmt.Fprintf(&b, "SUBIDO POR: %s\n", orDefault(d.Text("uploader_name"), "Desconocido"))
	b.WriteString("\n--- CONTENIDO DEL ARCHIVO O TEXTO EXTENDIDO ---\n")
	b.WriteString(content)
	fmt.Fprintf(&b, "\n=== FIN DOCUMENTO ID:%d ===\n", d.ID())
	return b.String()
}

// truncate cuts s to max characters and appends sep and TruncationMarker when
// anything was cut.
func truncate(s string, max int, sep string) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return firstRunes(s, max) + sep + TruncationMarker
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
