package gwp

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/chat"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/filter"
	"github.com/jaakkos/gwp/internal/policy"
)

// registerAskAssistant registers the ask_assistant MCP tool.
func registerAskAssistant(s *server.MCPServer, store *app.Store, pol *policy.Policy, asker Asker, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolAskAssistant,
			mcp.WithDescription(
				"Ask the library assistant a question. The repository documents matching the given filters "+
					"(or the listed ids) are sent as context; with one or two documents the full text is used. "+
					"Returns the answer, the cited document ids and suggested follow-up questions."),
			mcp.WithString("question", mcp.Required(), mcp.Description("The question, in Spanish or English")),
			mcp.WithObject("filters", mcp.Description("Repositorio facet values, as in query_view")),
			mcp.WithString("q", mcp.Description("Free-text term narrowing the context documents")),
			mcp.WithArray("ids", mcp.Description("Restrict the context to these repositorio ids")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			question, err := requireString(args, "question")
			if err != nil {
				return nil, err
			}
			values, err := stringMap(args, "filters")
			if err != nil {
				return nil, err
			}
			ids, err := intSlice(args, "ids")
			if err != nil {
				return nil, err
			}
			term, _ := args["q"].(string)

			docs := store.Get(domain.CollectionRepositorio)
			if v, ok := pol.View(string(domain.CollectionRepositorio)); ok {
				docs = filter.Compute(docs, v.FilterSet(), domain.Selection{Values: values, Term: term}).Filtered
			}
			docs = onlyIDs(docs, ids)

			turn, err := asker.Ask(ctx, question, docs)
			if err != nil {
				if errors.Is(err, chat.ErrServiceBusy) {
					return mcp.NewToolResultError(err.Error()), nil
				}
				logger.Printf("ask_assistant: %v", err)
				return nil, fmt.Errorf("assistant failed: %w", err)
			}
			text, err := jsonText(map[string]any{
				"answer":      turn.Reply.Body,
				"citations":   turn.Reply.Citations,
				"suggestions": turn.Reply.SuggestedFollowUps,
				"deep_dive":   turn.DeepDive,
				"documents":   len(docs),
			})
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(text), nil
		},
	)
}

func onlyIDs(docs []domain.Record, ids []int) []domain.Record {
	if len(ids) == 0 {
		return docs
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Record
	for _, d := range docs {
		if want[d.ID()] {
			out = append(out, d)
		}
	}
	return out
}
