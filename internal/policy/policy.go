// Package policy holds the dashboard configuration and the access rules
// derived from it (read-only users, enabled tools, view definitions).
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/retry"
)

// GlobalStateDir returns the default state directory (~/.config/gwp).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "gwp")
}

// GlobalStateFile returns the default local state file path.
func GlobalStateFile() string {
	return filepath.Join(GlobalStateDir(), "state.sqlite")
}

// RetryConfig configures backoff for throttled chat turns.
type RetryConfig struct {
	MaxRetries  int     `yaml:"max_retries"`
	BaseDelayMs int     `yaml:"base_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
}

// ChatConfig configures the chat-completion endpoint.
type ChatConfig struct {
	Endpoint         string       `yaml:"endpoint"`
	Model            string       `yaml:"model"`
	Temperature      float64      `yaml:"temperature"`
	APIKeyEnv        string       `yaml:"api_key_env"` // env var holding the API key
	MaxItems         int          `yaml:"max_items"`
	MaxCharsPerItem  int          `yaml:"max_chars_per_item"`
	DeepDiveMaxChars int          `yaml:"deep_dive_max_chars"`
	Retry            *RetryConfig `yaml:"retry"`
}

// ViewConfig binds a list view to a collection and its filters.
type ViewConfig struct {
	Title      string         `yaml:"title"`
	Collection string         `yaml:"collection"`
	Facets     []domain.Facet `yaml:"facets"`
	Search     *domain.Search `yaml:"search,omitempty"`
}

// FilterSet returns the view's facets and search.
func (v ViewConfig) FilterSet() domain.FilterSet {
	return domain.FilterSet{Facets: v.Facets, Search: v.Search}
}

// KnowledgeConfig controls the repository search index.
type KnowledgeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config holds the dashboard configuration.
type Config struct {
	APIBaseURL             string                `yaml:"api_base_url"`
	StateFile              string                `yaml:"state_file"`
	LogFile                string                `yaml:"log_file"`
	HTTPPort               int                   `yaml:"http_port"`
	RefreshIntervalSeconds int                   `yaml:"refresh_interval_seconds"`
	EnabledTools           []string              `yaml:"enabled_tools"`
	ReadOnlyUsers          []string              `yaml:"read_only_users"`
	Chat                   *ChatConfig           `yaml:"chat"`
	Knowledge              *KnowledgeConfig      `yaml:"knowledge"`
	Views                  map[string]ViewConfig `yaml:"views"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:             "http://localhost:5000",
		HTTPPort:               8943,
		RefreshIntervalSeconds: 10,
		EnabledTools:           []string{"*"},
		ReadOnlyUsers:          []string{"visita"},
		Chat:                   DefaultChat(),
		Knowledge:              &KnowledgeConfig{Enabled: true},
		Views:                  DefaultViews(),
	}
}

// DefaultChat returns the default chat settings. The API key is never part
// of the file; it is read from APIKeyEnv.
func DefaultChat() *ChatConfig {
	return &ChatConfig{
		Endpoint:         "https://open.bigmodel.cn/api/paas/v4/chat/completions",
		Model:            "GLM-4.7-FlashX",
		Temperature:      0.2,
		APIKeyEnv:        "GWP_CHAT_API_KEY",
		MaxItems:         20,
		MaxCharsPerItem:  200,
		DeepDiveMaxChars: 25000,
		Retry:            &RetryConfig{MaxRetries: 2, BaseDelayMs: 1000, Multiplier: 2},
	}
}

// DefaultViews returns the filter bindings of the GWP list views.
func DefaultViews() map[string]ViewConfig {
	return map[string]ViewConfig{
		"plan": {
			Title:      "Plan Maestro",
			Collection: string(domain.CollectionPlan),
			Facets: []domain.Facet{
				{ID: "filterProduct", Key: "product_code", Label: "Producto"},
				{ID: "filterResp", Key: "primary_responsible", Label: "Responsable"},
				{ID: "filterStatus", Key: "status", Label: "Estado"},
			},
			Search: &domain.Search{ID: "searchPlan", Keys: []string{"task_name", "activity_code"}},
		},
		"hitos": {
			Title:      "Hitos",
			Collection: string(domain.CollectionHitos),
			Facets: []domain.Facet{
				{ID: "hitoFilterProduct", Key: "product_code", Label: "Producto"},
				{ID: "hitoFilterResp", Key: "primary_responsible", Label: "Responsable"},
				{ID: "hitoFilterStatus", Key: "estado", Label: "Estado"},
			},
			Search: &domain.Search{ID: "hitoSearch", Keys: []string{"nombre", "task_name", "activity_code"}},
		},
		"observaciones": {
			Title:      "Observaciones",
			Collection: string(domain.CollectionObservaciones),
			Facets: []domain.Facet{
				{ID: "obsFilterProduct", Key: "product_code", Label: "Producto"},
				{ID: "obsFilterResp", Key: "primary_responsible", Label: "Responsable"},
				{ID: "obsFilterStatus", Key: "status", Label: "Estado"},
			},
			Search: &domain.Search{ID: "obsSearch", Keys: []string{"texto", "usuario_nombre", "task_name", "activity_code"}},
		},
		"repositorio": {
			Title:      "Biblioteca Estratégica",
			Collection: string(domain.CollectionRepositorio),
			Facets: []domain.Facet{
				{ID: "repoFilterType", Key: "tipo_documento", Label: "Tipo"},
				{ID: "repoFilterSourceType", Key: "tipo_fuente", Label: "Tipo de fuente"},
				{ID: "repoFilterOrigin", Key: "fuente_origen", Label: "Institución", Split: ","},
				{ID: "repoFilterYear", Key: "fecha_publicacion", Label: "Año", Transform: domain.TransformYear},
				{ID: "repoFilterTags", Key: "etiquetas", Label: "Etiqueta", Split: ","},
			},
			Search: &domain.Search{ID: "repoSearch", Keys: []string{"titulo", "descripcion", "etiquetas", "puntos_clave"}},
		},
		"documentos": {
			Title:      "Documentos",
			Collection: string(domain.CollectionDocumentos),
			Search:     &domain.Search{ID: "docSearch", Keys: []string{"nombre_archivo", "task_name", "activity_code", "uploader"}},
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig.
// Views named in the file replace the default of the same name; the other
// default views are kept.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Views = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	views := DefaultViews()
	for name, v := range cfg.Views {
		views[name] = v
	}
	cfg.Views = views
	if cfg.Chat == nil {
		cfg.Chat = DefaultChat()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every view names a known collection and that facet
// IDs are unique within a view.
func (c *Config) Validate() error {
	for name, v := range c.Views {
		if _, err := domain.ParseCollection(v.Collection); err != nil {
			return fmt.Errorf("view %s: %w", name, err)
		}
		seen := make(map[string]bool, len(v.Facets))
		for _, f := range v.Facets {
			if f.ID == "" || f.Key == "" {
				return fmt.Errorf("view %s: facet needs id and key", name)
			}
			if seen[f.ID] {
				return fmt.Errorf("view %s: duplicate facet %s", name, f.ID)
			}
			seen[f.ID] = true
			if f.Transform != "" && f.Transform != domain.TransformYear {
				return fmt.Errorf("view %s: facet %s: unknown transform %q", name, f.ID, f.Transform)
			}
		}
	}
	return nil
}

// Policy answers configuration and access questions.
type Policy struct {
	config *Config
}

// New creates a policy for cfg.
func New(cfg *Config) *Policy {
	return &Policy{config: cfg}
}

// Config returns the underlying configuration.
func (p *Policy) Config() *Config {
	return p.config
}

// APIBaseURL returns the GWP backend URL.
func (p *Policy) APIBaseURL() string {
	return p.config.APIBaseURL
}

// StateFile returns the local state file path. If unset, defaults to
// ~/.config/gwp/state.sqlite.
func (p *Policy) StateFile() string {
	if p.config.StateFile == "" {
		return GlobalStateFile()
	}
	return p.config.StateFile
}

// SignalFilePath returns the refresh signal file (same directory as the
// state file).
func (p *Policy) SignalFilePath() string {
	return filepath.Join(filepath.Dir(p.StateFile()), ".gwp-refresh")
}

// KnowledgeDBPath returns the path of the repository search index.
func (p *Policy) KnowledgeDBPath() string {
	return filepath.Join(filepath.Dir(p.StateFile()), "knowledge.db")
}

// KnowledgeEnabled reports whether the repository index is on.
func (p *Policy) KnowledgeEnabled() bool {
	return p.config.Knowledge != nil && p.config.Knowledge.Enabled
}

// LogFile returns the configured log file path.
// If unset, defaults to ~/.config/gwp/gwp.log.
// Set to "none" or "off" to disable file logging entirely.
func (p *Policy) LogFile() string {
	if p.config.LogFile == "" {
		return filepath.Join(GlobalStateDir(), "gwp.log")
	}
	return p.config.LogFile
}

// HTTPPort returns the dashboard port.
func (p *Policy) HTTPPort() int {
	return p.config.HTTPPort
}

// RefreshInterval returns the notifier poll interval.
func (p *Policy) RefreshInterval() time.Duration {
	if p.config.RefreshIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.config.RefreshIntervalSeconds) * time.Second
}

// IsToolEnabled checks if an MCP tool is enabled.
func (p *Policy) IsToolEnabled(name string) bool {
	for _, t := range p.config.EnabledTools {
		if t == "*" || t == name {
			return true
		}
	}
	return false
}

// IsReadOnly reports whether any of the given user names (nombre, username)
// is configured as read-only. Matching ignores case.
func (p *Policy) IsReadOnly(names ...string) bool {
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		for _, ro := range p.config.ReadOnlyUsers {
			if strings.EqualFold(ro, n) {
				return true
			}
		}
	}
	return false
}

// View returns the named view.
func (p *Policy) View(name string) (ViewConfig, bool) {
	v, ok := p.config.Views[name]
	return v, ok
}

// ViewNames returns the configured view names, sorted.
func (p *Policy) ViewNames() []string {
	names := make([]string, 0, len(p.config.Views))
	for n := range p.config.Views {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Chat returns the chat settings. Never nil.
func (p *Policy) Chat() *ChatConfig {
	if p.config.Chat == nil {
		return DefaultChat()
	}
	return p.config.Chat
}

// ChatAPIKey reads the chat API key from the configured environment variable.
func (p *Policy) ChatAPIKey() string {
	env := p.Chat().APIKeyEnv
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// ChatRetryPolicy returns the backoff for throttled chat turns.
func (p *Policy) ChatRetryPolicy() retry.Policy {
	rc := p.Chat().Retry
	if rc == nil {
		rc = DefaultChat().Retry
	}
	return retry.Policy{
		MaxRetries: rc.MaxRetries,
		BaseDelay:  time.Duration(rc.BaseDelayMs) * time.Millisecond,
		Multiplier: rc.Multiplier,
	}
}
