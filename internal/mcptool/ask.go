// Package mcptool serves the question answering pipeline as an MCP tool
// over stdio.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/orchestrator"
)

const toolName = "ask_work_items"

// Responder answers one question.
type Responder interface {
	Answer(ctx context.Context, req orchestrator.Request) (models.OrchestratedResponse, error)
}

// AskTool handles the ask_work_items tool.
type AskTool struct {
	pipeline Responder
	// userID is the identity every call runs as; stdio has no caller auth.
	userID string
}

// NewAskTool creates an AskTool.
func NewAskTool(pipeline Responder, userID string) *AskTool {
	return &AskTool{pipeline: pipeline, userID: userID}
}

// Definition returns the MCP tool definition.
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool(toolName,
		mcp.WithDescription(
			"Answer a natural-language question about work items in the team's tracker: "+
				"bugs, tasks, sprints, assignments, tags and saved queries. "+
				"Pass conversation_id from a previous answer to ask a follow-up.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question, e.g. \"show me active bugs in the current sprint\""),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation to continue"),
		),
		mcp.WithBoolean("only_mine",
			mcp.Description("Restrict results to work items assigned to the caller"),
		),
	)
}

// Handle processes the tool call. Pipeline failures are tool errors, not
// protocol errors.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	in := orchestrator.Request{
		Query:          query,
		UserID:         t.userID,
		ConversationID: req.GetString("conversation_id", ""),
	}
	if req.GetBool("only_mine", false) {
		in.Filters = &models.Filters{OnlyMine: true}
	}

	resp, err := t.pipeline.Answer(ctx, in)
	if err != nil {
		log.Warnf("%s failed: %v", toolName, err)
		return mcp.NewToolResultError(resp.Summary), nil
	}

	payload, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding response failed: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(render(resp)),
			mcp.NewTextContent(string(payload)),
		},
	}, nil
}

// render is the human-readable part of a result.
func render(resp models.OrchestratedResponse) string {
	var b strings.Builder
	b.WriteString(resp.Summary)
	if len(resp.Suggestions) > 0 {
		b.WriteString("\n\nYou could also ask:")
		for _, s := range resp.Suggestions {
			fmt.Fprintf(&b, "\n- %s", s)
		}
	}
	if resp.Metadata.ConversationID != "" {
		fmt.Fprintf(&b, "\n\nconversation_id: %s", resp.Metadata.ConversationID)
	}
	return b.String()
}

// NewServer registers the tool on a fresh MCP server.
func NewServer(name, version string, pipeline Responder, userID string) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Use "+toolName+" for any question about the team's work items."),
	)
	ask := NewAskTool(pipeline, userID)
	s.AddTool(ask.Definition(), ask.Handle)
	return s
}

// ServeStdio blocks serving s on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
