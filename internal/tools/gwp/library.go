package gwp

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/gwp/internal/knowledge"
)

type libraryHit struct {
	ID int `json:"id"`
	knowledge.Result
}

// registerSearchLibrary registers the search_library MCP tool.
func registerSearchLibrary(s *server.MCPServer, store *knowledge.Store, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolSearchLibrary,
			mcp.WithDescription(
				"Full-text search over the strategic library (titles, descriptions, tags, key points and "+
					"long summaries). Accents are ignored. Returns ranked snippets with repositorio ids."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search terms, e.g. 'gestión hídrica'")),
			mcp.WithString("category", mcp.Description("Optional tipo_documento filter")),
			mcp.WithBoolean("any", mcp.Description("Match any term instead of all terms (default: false)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results to return (default: 10, max: 50)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			query, err := requireString(args, "query")
			if err != nil {
				return nil, err
			}
			category, _ := args["category"].(string)
			anyTerm, _ := args["any"].(bool)
			limit := optionalInt(args, "limit", 10, 1, 50)

			var results []knowledge.Result
			if anyTerm {
				results, err = store.QueryAny(ctx, query, limit)
			} else {
				results, err = store.Query(ctx, query, category, limit)
			}
			if err != nil {
				logger.Printf("search_library error: %v", err)
				return nil, fmt.Errorf("library search failed: %w", err)
			}
			if len(results) == 0 {
				return mcp.NewToolResultText("No results found for: " + query), nil
			}

			hits := make([]libraryHit, 0, len(results))
			for _, r := range results {
				id, _ := knowledge.IDFromPath(r.Path)
				hits = append(hits, libraryHit{ID: id, Result: r})
			}
			text, err := jsonText(hits)
			if err != nil {
				return nil, err
			}
			logger.Printf("search_library: %q returned %d results", query, len(hits))
			return mcp.NewToolResultText(text), nil
		},
	)
}
