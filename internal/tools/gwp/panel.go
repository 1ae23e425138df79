package gwp

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/stats"
)

// registerGetStats registers the get_stats MCP tool.
func registerGetStats(s *server.MCPServer, store *app.Store, now func() time.Time) {
	s.AddTool(
		mcp.NewTool(toolGetStats,
			mcp.WithDescription(
				"Control panel summary of the master plan: totals, progress percentage, counts by status "+
					"and product, activities due in the next 7 days, upcoming deadlines and recent changes."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sum := stats.Summarize(store.Get(domain.CollectionPlan), store.Get(domain.CollectionHitos), now())
			text, err := jsonText(sum)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(text), nil
		},
	)
}

// registerCalendarEvents registers the calendar_events MCP tool.
func registerCalendarEvents(s *server.MCPServer, store *app.Store, now func() time.Time) {
	s.AddTool(
		mcp.NewTool(toolCalendarEvents,
			mcp.WithDescription("Deliveries (plan end dates) and milestones (estimated dates) grouped by month, from the current month on."),
			mcp.WithBoolean("history", mcp.Description("Include months before the current one (default: false)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			history, _ := req.GetArguments()["history"].(bool)
			events := stats.Events(store.Get(domain.CollectionPlan), store.Get(domain.CollectionHitos))
			events = stats.FromMonth(events, now(), history)
			if len(events) == 0 {
				return mcp.NewToolResultText("No hay eventos para mostrar."), nil
			}
			text, err := jsonText(stats.ByMonth(events))
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(text), nil
		},
	)
}

// registerRefreshData registers the refresh_data MCP tool.
func registerRefreshData(s *server.MCPServer, store *app.Store, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolRefreshData,
			mcp.WithDescription("Reload collections from the GWP backend. Omit collections to reload all of them."),
			mcp.WithArray("collections", mcp.Description("Collections to reload: plan, hitos, repositorio, observaciones, documentos")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var cs []domain.Collection
			if raw, ok := req.GetArguments()["collections"].([]any); ok {
				for _, v := range raw {
					name, _ := v.(string)
					c, err := domain.ParseCollection(name)
					if err != nil {
						return nil, err
					}
					cs = append(cs, c)
				}
			}
			if err := store.RefreshAll(ctx, cs...); err != nil {
				logger.Printf("refresh_data: %v", err)
				return nil, fmt.Errorf("refresh failed: %w", err)
			}
			if len(cs) == 0 {
				cs = domain.Collections()
			}
			counts := make([]string, 0, len(cs))
			for _, c := range cs {
				counts = append(counts, fmt.Sprintf("%s=%d", c, len(store.Get(c))))
			}
			return mcp.NewToolResultText("Refreshed: " + strings.Join(counts, ", ")), nil
		},
	)
}
