package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/talkmatch/internal/chat"
	"github.com/kalambet/talkmatch/internal/persona"
)

// NewMCPServer creates an MCP server exposing the matchmaking tools and
// the match board resource.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"talkmatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("talkmatch: AI ambassadors chat with personas, score compatibility and link mutual matches. Personas: "+
			strings.Join(persona.Names(deps.Manager.Personas()), ", ")+"."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a message as a persona to its ambassador and return the ambassador's reply."),
			mcp.WithString("name", mcp.Description("Persona name"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Message text"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("auto_reply",
			mcp.WithDescription("Let the AI write the persona's next message and send it."),
			mcp.WithString("name", mcp.Description("Persona name"), mcp.Required()),
		),
		mcpAutoReply(deps),
	)

	s.AddTool(
		mcp.NewTool("calculate_matches",
			mcp.WithDescription("Score compatibility between all ready personas and assign each ambassador its best partner."),
		),
		mcpCalculate(deps),
	)

	s.AddTool(
		mcp.NewTool("declare_match",
			mcp.WithDescription("Officially match two personas, removing them from further scoring."),
			mcp.WithString("a", mcp.Description("First persona"), mcp.Required()),
			mcp.WithString("b", mcp.Description("Second persona"), mcp.Required()),
		),
		mcpDeclareMatch(deps),
	)

	s.AddTool(
		mcp.NewTool("top_matches",
			mcp.WithDescription("List a persona's best-scoring partners."),
			mcp.WithString("name", mcp.Description("Persona name"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of matches (default 3)")),
		),
		mcpTopMatches(deps),
	)

	s.AddTool(
		mcp.NewTool("show_profile",
			mcp.WithDescription("Show the profile summary built from a persona's messages."),
			mcp.WithString("name", mcp.Description("Persona name"), mcp.Required()),
		),
		mcpShowProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"talkmatch://board",
			"Match Board",
			mcp.WithResourceDescription("Every persona's ambassador status and top matches as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBoard(deps),
	)

	return s
}

func mcpSendMessage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}

		reply, err := sendMessage(ctx, deps, name, text)
		if err != nil {
			return mcpError(fmt.Sprintf("send failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s [%s]: %s", reply.Session, reply.Status, reply.Display)), nil
	}
}

func mcpAutoReply(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		auto, err := autoReply(ctx, deps, name)
		if err != nil {
			return mcpError(fmt.Sprintf("auto reply failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s: %s\nAmbassador: %s", name, chat.Display(auto.Message), auto.Reply.Display)), nil
	}
}

func mcpCalculate(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Manager.Calculate(ctx); err != nil {
			return mcpError(fmt.Sprintf("calculation failed: %v", err)), nil
		}
		return mcpText(deps.Manager.Board().String()), nil
	}
}

func mcpDeclareMatch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, err := req.RequireString("a")
		if err != nil {
			return mcpError("a is required"), nil
		}
		b, err := req.RequireString("b")
		if err != nil {
			return mcpError("b is required"), nil
		}

		if err := deps.Manager.DeclareMatch(a, b); err != nil {
			return mcpError(fmt.Sprintf("declare failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s and %s are officially matched", a, b)), nil
	}
}

func mcpTopMatches(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		if _, err := deps.Manager.Session(name); err != nil {
			return mcpError(err.Error()), nil
		}

		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}

		matches := deps.Manager.Matcher().TopMatches(name, limit)
		if len(matches) == 0 {
			return mcpText("No matches yet."), nil
		}
		var sb strings.Builder
		for i, m := range matches {
			fmt.Fprintf(&sb, "%d. %s: %.2f\n", i+1, m.User, m.Score)
		}
		return mcpText(sb.String()), nil
	}
}

func mcpShowProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		text, err := deps.Manager.ShowProfile(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(text), nil
	}
}

func mcpResourceBoard(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Manager.Board())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal board: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
