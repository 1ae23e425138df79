package knowledge

import (
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/jaakkos/gwp/internal/domain"
)

const pathPrefix = "repositorio:"

// indexedFields are the repository fields whose text is searchable.
var indexedFields = []string{
	"titulo",
	"descripcion",
	"etiquetas",
	"puntos_clave",
	"resumen_largo",
	"fuente_origen",
	"tipo_fuente",
}

// DocumentFromRecord builds the indexed form of a repository record.
func DocumentFromRecord(r domain.Record) Document {
	var parts []string
	for _, f := range indexedFields {
		if v := strings.TrimSpace(r.Text(f)); v != "" {
			parts = append(parts, v)
		}
	}
	return Document{
		Path:     PathFor(r.ID()),
		Title:    r.Text("titulo"),
		Content:  strings.Join(parts, "\n"),
		Category: r.Text("tipo_documento"),
	}
}

// PathFor returns the index path of repository record id.
func PathFor(id int) string {
	return pathPrefix + strconv.Itoa(id)
}

// IDFromPath is the inverse of PathFor.
func IDFromPath(path string) (int, bool) {
	if !strings.HasPrefix(path, pathPrefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimPrefix(path, pathPrefix))
	return id, err == nil
}

// Indexer keeps the store in step with the repository collection.
type Indexer struct {
	store  *Store
	logger *log.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(store *Store, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Indexer{store: store, logger: logger}
}

// Sync indexes changed records and removes entries whose record is gone.
func (idx *Indexer) Sync(records []domain.Record) (indexed, removed int) {
	existingPaths, err := idx.store.IndexedPaths()
	if err != nil {
		idx.logger.Printf("Knowledge indexer: list indexed paths: %v", err)
	}

	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID() == 0 {
			continue
		}
		doc := DocumentFromRecord(r)
		seen[doc.Path] = true
		changed, err := idx.store.IndexIfChanged(doc)
		if err != nil {
			idx.logger.Printf("Knowledge indexer: index %s: %v", doc.Path, err)
			continue
		}
		if changed {
			indexed++
		}
	}

	for _, p := range existingPaths {
		if seen[p] {
			continue
		}
		if err := idx.store.Remove(p); err != nil {
			idx.logger.Printf("Knowledge indexer: remove %s: %v", p, err)
			continue
		}
		removed++
	}
	return indexed, removed
}

// OnRepositoryUpdated is a store handler for "repositorio:updated".
func (idx *Indexer) OnRepositoryUpdated(ev domain.CollectionUpdated) error {
	indexed, removed := idx.Sync(ev.Records)
	idx.logger.Printf("Knowledge indexer: synced %d records (indexed=%d, removed=%d)", len(ev.Records), indexed, removed)
	return nil
}
