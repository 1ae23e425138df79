package main

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/chat"
	"github.com/jaakkos/gwp/internal/dashboard"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/gwpapi"
	"github.com/jaakkos/gwp/internal/knowledge"
	"github.com/jaakkos/gwp/internal/policy"
	"github.com/jaakkos/gwp/internal/repository"
	gwptools "github.com/jaakkos/gwp/internal/tools/gwp"
)

const instructions = `Tools over the GWP work plan. Use query_view to list and filter plan,
hitos, observaciones, documentos and repositorio records; view_options to see
the filter values of a view; get_stats and calendar_events for the panel
summary; search_library for full-text search in the strategic library; and
ask_assistant to ask questions answered from the library documents.`

// serverBundle holds the long-lived services shared by serve, mcp and the
// one-shot commands.
type serverBundle struct {
	pol       *policy.Policy
	logger    *log.Logger
	kv        app.KeyValueStore
	client    *gwpapi.Client
	store     *app.Store
	knowledge *knowledge.Store
	bridge    *chat.Bridge
}

// newServerBundle opens the local state, the backend client and the store.
// The knowledge index is optional: if it cannot be opened the library search
// is disabled and chat falls back to unranked context.
func newServerBundle(pol *policy.Policy, logger *log.Logger) (*serverBundle, error) {
	kv, err := repository.NewKeyValueStore(pol.StateFile())
	if err != nil {
		return nil, fmt.Errorf("local state: %w", err)
	}

	client := gwpapi.NewClient(pol.APIBaseURL(),
		gwpapi.WithKeyValueStore(kv),
		gwpapi.WithLogger(logger),
	)
	b := &serverBundle{
		pol:    pol,
		logger: logger,
		kv:     kv,
		client: client,
		store:  app.NewStore(client, nil, logger),
	}

	if pol.KnowledgeEnabled() {
		ks, err := knowledge.NewStore(pol.KnowledgeDBPath())
		if err != nil {
			logger.Printf("Warning: knowledge store init failed: %v (library search disabled)", err)
		} else {
			b.knowledge = ks
			indexer := knowledge.NewIndexer(ks, logger)
			b.store.On(domain.EventRepositorioUpdated, indexer.OnRepositoryUpdated)
			logger.Printf("Knowledge index enabled (db=%s)", pol.KnowledgeDBPath())
		}
	}

	cc := pol.Chat()
	chatOpts := []chat.Option{
		chat.WithDetailFetcher(client),
		chat.WithLogger(logger),
	}
	if b.knowledge != nil {
		chatOpts = append(chatOpts, chat.WithRanker(b.knowledge))
	}
	b.bridge = chat.NewBridge(chat.Config{
		Endpoint:         cc.Endpoint,
		Model:            cc.Model,
		APIKey:           pol.ChatAPIKey(),
		Temperature:      cc.Temperature,
		MaxItems:         cc.MaxItems,
		MaxCharsPerItem:  cc.MaxCharsPerItem,
		DeepDiveMaxChars: cc.DeepDiveMaxChars,
		Retry:            pol.ChatRetryPolicy(),
	}, chatOpts...)
	if pol.ChatAPIKey() == "" {
		logger.Printf("Warning: $%s is empty; chat requests are sent without a key", cc.APIKeyEnv)
	}

	return b, nil
}

// mcpServer builds the MCP server with the GWP tools enabled by the policy.
func (b *serverBundle) mcpServer() *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(_ context.Context, _ any, message *mcp.CallToolRequest, _ *mcp.CallToolResult) {
		if message != nil {
			b.logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})

	s := server.NewMCPServer(
		"gwp",
		Version,
		server.WithInstructions(instructions),
		server.WithHooks(hooks),
	)

	opts := []gwptools.RegisterOption{gwptools.WithAsker(b.bridge)}
	if b.knowledge != nil {
		opts = append(opts, gwptools.WithKnowledgeStore(b.knowledge))
	}
	gwptools.Register(s, b.store, b.pol, b.logger, opts...)
	return s
}

// dashboard builds the dashboard handler.
func (b *serverBundle) dashboard() *dashboard.Handler {
	return dashboard.NewHandler(b.store, b.pol,
		dashboard.WithBackend(b.client),
		dashboard.WithAsker(b.bridge),
		dashboard.WithPrefs(b.kv),
		dashboard.WithLogger(b.logger),
	)
}

// cleanup closes the knowledge index and the local state.
func (b *serverBundle) cleanup() {
	if b.knowledge != nil {
		if err := b.knowledge.Close(); err != nil {
			b.logger.Printf("Warning: close knowledge store: %v", err)
		}
	}
	if c, ok := b.kv.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			b.logger.Printf("Warning: close local state: %v", err)
		}
	}
}
