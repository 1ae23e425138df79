package gwp

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/filter"
	"github.com/jaakkos/gwp/internal/policy"
)

const defaultViewLimit = 50

// viewResult is the JSON body returned by query_view.
type viewResult struct {
	View      string              `json:"view"`
	Total     int                 `json:"total"`
	Matched   int                 `json:"matched"`
	Records   []domain.Record     `json:"records"`
	Options   map[string][]string `json:"options"`
	Chips     []filter.Chip       `json:"chips,omitempty"`
	Truncated bool                `json:"truncated,omitempty"`
}

// lookupView resolves a configured view and its collection.
func lookupView(pol *policy.Policy, name string) (policy.ViewConfig, domain.Collection, error) {
	v, ok := pol.View(name)
	if !ok {
		return policy.ViewConfig{}, "", fmt.Errorf("unknown view %q (available: %s)", name, strings.Join(pol.ViewNames(), ", "))
	}
	c, err := domain.ParseCollection(v.Collection)
	if err != nil {
		return policy.ViewConfig{}, "", fmt.Errorf("view %s: %w", name, err)
	}
	return v, c, nil
}

// registerQueryView registers the query_view MCP tool.
func registerQueryView(s *server.MCPServer, store *app.Store, pol *policy.Policy, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolQueryView,
			mcp.WithDescription(
				"Filter a dashboard view (plan, hitos, observaciones, repositorio, documentos) the way the "+
					"dashboard does: every active facet narrows by case-insensitive substring, and the free-text "+
					"term must match one of the view's search fields. Returns the matching records and the "+
					"options still available for each facet."),
			mcp.WithString("view", mcp.Required(), mcp.Description("View name, e.g. 'plan'")),
			mcp.WithObject("filters", mcp.Description("Facet ID to value, e.g. {\"filterStatus\": \"Pendiente\"}. Use view_options to list facet IDs.")),
			mcp.WithString("q", mcp.Description("Free-text search term")),
			mcp.WithNumber("limit", mcp.Description("Maximum records returned (default: 50, max: 500)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			name, err := requireString(args, "view")
			if err != nil {
				return nil, err
			}
			v, c, err := lookupView(pol, name)
			if err != nil {
				return nil, err
			}
			values, err := stringMap(args, "filters")
			if err != nil {
				return nil, err
			}
			term, _ := args["q"].(string)
			limit := optionalInt(args, "limit", defaultViewLimit, 1, 500)

			sel := domain.Selection{Values: values, Term: term}
			set := v.FilterSet()
			records := store.Get(c)
			res := filter.Compute(records, set, sel)

			out := viewResult{
				View:    name,
				Total:   len(records),
				Matched: len(res.Filtered),
				Records: res.Filtered,
				Options: res.Options,
				Chips:   filter.Chips(set, sel),
			}
			if len(out.Records) > limit {
				out.Records = out.Records[:limit]
				out.Truncated = true
			}
			text, err := jsonText(out)
			if err != nil {
				return nil, err
			}
			logger.Printf("query_view: %s matched %d of %d", name, out.Matched, out.Total)
			return mcp.NewToolResultText(text), nil
		},
	)
}

type facetOptions struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Field   string   `json:"field"`
	Options []string `json:"options"`
}

// registerViewOptions registers the view_options MCP tool.
func registerViewOptions(s *server.MCPServer, store *app.Store, pol *policy.Policy) {
	s.AddTool(
		mcp.NewTool(toolViewOptions,
			mcp.WithDescription("List the facets of a view with every value currently present in its collection, plus the search fields."),
			mcp.WithString("view", mcp.Required(), mcp.Description("View name, e.g. 'repositorio'")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := requireString(req.GetArguments(), "view")
			if err != nil {
				return nil, err
			}
			v, c, err := lookupView(pol, name)
			if err != nil {
				return nil, err
			}
			res := filter.Compute(store.Get(c), v.FilterSet(), domain.Selection{})
			facets := make([]facetOptions, 0, len(v.Facets))
			for _, f := range v.Facets {
				facets = append(facets, facetOptions{ID: f.ID, Label: f.DisplayLabel(), Field: f.Key, Options: res.Options[f.ID]})
			}
			out := map[string]any{"view": name, "title": v.Title, "collection": c, "facets": facets}
			if v.Search != nil {
				out["search_fields"] = v.Search.Keys
			}
			text, err := jsonText(out)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(text), nil
		},
	)
}
