// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes trailguard tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/trailguard/internal/contacts"
	"github.com/starford/trailguard/internal/safety"
)

const sosConfirmation = "SEND SOS"

// Server wraps the MCP server with trailguard tools.
type Server struct {
	mcp *server.MCPServer
	svc *safety.Service
}

// New creates a new MCP server with all trailguard tools registered.
func New(svc *safety.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Trailguard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("journey_status",
		mcp.WithDescription("Current journey phase, distance travelled, last position and pending voice prompts."),
	), s.journeyStatus)

	s.mcp.AddTool(mcp.NewTool("start_journey",
		mcp.WithDescription("Start a journey. Contacts receive an update immediately and then periodically."),
	), s.startJourney)

	s.mcp.AddTool(mcp.NewTool("stop_journey",
		mcp.WithDescription("Stop the active journey and tell contacts the user arrived safely."),
	), s.stopJourney)

	s.mcp.AddTool(mcp.NewTool("trigger_sos",
		mcp.WithDescription("Send the emergency message to every selected contact on every channel. "+
			"Only call this when the user explicitly asks for help."),
		mcp.WithString("confirm", mcp.Required(), mcp.Description("Must be exactly \""+sosConfirmation+"\"")),
	), s.triggerSOS)

	s.mcp.AddTool(mcp.NewTool("list_contacts",
		mcp.WithDescription("List the selected emergency contacts and every known contact."),
	), s.listContacts)

	s.mcp.AddTool(mcp.NewTool("sync_contacts",
		mcp.WithDescription("Re-merge device exports, the remote store and the local cache."),
	), s.syncContacts)

	s.mcp.AddTool(mcp.NewTool("select_contacts",
		mcp.WithDescription("Replace the selected emergency contacts."),
		mcp.WithString("numbers", mcp.Required(), mcp.Description("Comma-separated phone numbers")),
	), s.selectContacts)

	s.mcp.AddTool(mcp.NewTool("get_alert_formats",
		mcp.WithDescription("Returns the text formats of every alert trailguard sends."),
	), s.getAlertFormats)

	s.mcp.AddResource(
		mcp.NewResource("trailguard://alert-formats", "Alert Formats",
			mcp.WithResourceDescription("Text of the journey, SOS, safe arrival and low battery messages."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readAlertFormatsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) journeyStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"session":          s.svc.Session(),
		"journey":          s.svc.Journey(),
		"location_enabled": s.svc.LocationEnabled(),
		"pending_prompts":  s.svc.PendingPrompts(),
	}), nil
}

func (s *Server) startJourney(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.StartJourney(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st), nil
}

func (s *Server) stopJourney(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.StopJourney(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st), nil
}

func (s *Server) triggerSOS(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	confirm, err := req.RequireString("confirm")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if confirm != sosConfirmation {
		return mcp.NewToolResultError(fmt.Sprintf("confirm must be %q", sosConfirmation)), nil
	}
	report, err := s.svc.TriggerSOS(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report), nil
}

func (s *Server) listContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Contacts()), nil
}

func (s *Server) syncContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	set, err := s.svc.SyncContacts(ctx)
	if err != nil && !contacts.IsDegraded(err) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := map[string]any{"selected": set.View()}
	if err != nil {
		res["warning"] = err.Error()
	}
	return jsonResult(res), nil
}

func (s *Server) selectContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("numbers")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var numbers []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			numbers = append(numbers, n)
		}
	}
	set, err := s.svc.SelectContacts(ctx, numbers)
	if err != nil && !contacts.IsDegraded(err) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(set.Destinations(), "\n")), nil
}

func (s *Server) getAlertFormats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AlertFormats), nil
}

func (s *Server) readAlertFormatsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "trailguard://alert-formats",
			MIMEType: "text/markdown",
			Text:     AlertFormats,
		},
	}, nil
}
