// Package gwp exposes the dashboard views, statistics, library search and
// chat assistant as MCP tools.
package gwp

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/chat"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/knowledge"
	"github.com/jaakkos/gwp/internal/policy"
)

// Asker answers chat questions. Implementation: chat.Bridge.
type Asker interface {
	Ask(ctx context.Context, question string, docs []domain.Record) (*chat.Turn, error)
}

// RegisterOption configures optional dependencies for tool registration.
type RegisterOption func(*registerOpts)

type registerOpts struct {
	asker     Asker
	knowledge *knowledge.Store
	now       func() time.Time
}

// WithAsker enables the ask_assistant tool.
func WithAsker(a Asker) RegisterOption {
	return func(o *registerOpts) { o.asker = a }
}

// WithKnowledgeStore enables the search_library tool.
func WithKnowledgeStore(ks *knowledge.Store) RegisterOption {
	return func(o *registerOpts) { o.knowledge = ks }
}

// WithClock overrides the clock used by get_stats and calendar_events.
func WithClock(now func() time.Time) RegisterOption {
	return func(o *registerOpts) { o.now = now }
}

// Register adds the GWP tools enabled by the policy to the server.
func Register(s *server.MCPServer, store *app.Store, pol *policy.Policy, logger *log.Logger, opts ...RegisterOption) {
	o := registerOpts{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	enabled := func(name string) bool {
		if pol.IsToolEnabled(name) {
			return true
		}
		logger.Printf("tool %s disabled by configuration", name)
		return false
	}

	// View tools (2)
	if enabled(toolQueryView) {
		registerQueryView(s, store, pol, logger)
	}
	if enabled(toolViewOptions) {
		registerViewOptions(s, store, pol)
	}

	// Panel tools (3)
	if enabled(toolGetStats) {
		registerGetStats(s, store, o.now)
	}
	if enabled(toolCalendarEvents) {
		registerCalendarEvents(s, store, o.now)
	}
	if enabled(toolRefreshData) {
		registerRefreshData(s, store, logger)
	}

	// Assistant and library (optional)
	if o.asker != nil && enabled(toolAskAssistant) {
		registerAskAssistant(s, store, pol, o.asker, logger)
	}
	if o.knowledge != nil && enabled(toolSearchLibrary) {
		registerSearchLibrary(s, o.knowledge, logger)
	}
}

const (
	toolQueryView      = "query_view"
	toolViewOptions    = "view_options"
	toolGetStats       = "get_stats"
	toolCalendarEvents = "calendar_events"
	toolRefreshData    = "refresh_data"
	toolAskAssistant   = "ask_assistant"
	toolSearchLibrary  = "search_library"
)
