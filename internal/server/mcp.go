package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/formworks/pdf-form-filler/internal/config"
	"github.com/formworks/pdf-form-filler/internal/jobs"
)

// Server hosts the form-fill API over the configured transport.
type Server struct {
	config    *config.Config
	orch      *jobs.Orchestrator
	logger    *slog.Logger
	mcpServer *mcpserver.MCPServer
}

// NewServer creates a server and registers its MCP tools.
func NewServer(cfg *config.Config, orch *jobs.Orchestrator, logger *slog.Logger) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := mcpserver.NewMCPServer(
		cfg.ServiceName,
		cfg.Version,
		mcpserver.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		orch:      orch,
		logger:    logger,
		mcpServer: mcpServer,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	startTool := mcp.NewTool(
		"form_fill_start",
		mcp.WithDescription("Start filling a PDF form from a URL using the user's stored document facts"),
		mcp.WithString("form_url",
			mcp.Required(),
			mcp.Description("Public http(s) URL of the PDF form to fill"),
		),
		mcp.WithString("user_id",
			mcp.Description("User whose uploaded documents supply the facts (defaults to 'user')"),
		),
	)
	s.mcpServer.AddTool(startTool, s.handleFormFillStart)

	statusTool := mcp.NewTool(
		"form_fill_status",
		mcp.WithDescription("Get the status and per-field results of a form-fill job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job id returned by form_fill_start"),
		),
	)
	s.mcpServer.AddTool(statusTool, s.handleFormFillStatus)
}

func (s *Server) handleFormFillStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	formURL, err := request.RequireString("form_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	userID := ""
	if u, ok := request.GetArguments()["user_id"].(string); ok {
		userID = u
	}

	snap, err := s.orch.Start(ctx, userID, formURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := "Form-fill job accepted.\n"
	responseText += fmt.Sprintf("Job ID: %s\n", snap.JobID)
	responseText += fmt.Sprintf("Form: %s\n", snap.FormSlug)
	responseText += fmt.Sprintf("Status: %s\n", snap.Status)
	responseText += "Use form_fill_status with the job id to poll progress."

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleFormFillStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := s.orch.Get(jobID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatJobSnapshot(snap)), nil
}

func formatJobSnapshot(snap jobs.Snapshot) string {
	text := fmt.Sprintf("Job %s\n", snap.JobID)
	text += fmt.Sprintf("Form: %s\n", snap.FormSlug)
	text += fmt.Sprintf("Status: %s\n", snap.Status)
	if snap.Message != "" {
		text += fmt.Sprintf("Message: %s\n", snap.Message)
	}
	text += fmt.Sprintf("Fields: %d total, %d filled, %d skipped, %d errors\n",
		snap.TotalFields, snap.FilledFields, snap.SkippedFields, snap.ErrorFields)
	if snap.FilledFormURL != "" {
		text += fmt.Sprintf("Filled form: %s\n", snap.FilledFormURL)
	}

	if len(snap.Fields) > 0 {
		detail, err := json.MarshalIndent(snap.Fields, "", "  ")
		if err == nil {
			text += "\nPer-field results:\n" + string(detail)
		}
	}
	return text
}

// Run starts the server in the configured mode.
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runHTTPMode(ctx)
	}
	return s.runStdioMode(ctx)
}

func (s *Server) runStdioMode(_ context.Context) error {
	s.logger.Info("starting MCP server in stdio mode", "service", s.config.ServiceName)
	if err := mcpserver.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
