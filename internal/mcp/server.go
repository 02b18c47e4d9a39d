// Package mcp exposes a read-only MCP tool for retrieving capture
// transcripts, so agent clients can query a user's captures over HTTP.
package mcp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"capturebox/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Server struct {
	store store.Store
}

func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

func (s *Server) getCapturesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username, err := request.RequireString("username")
	if err != nil {
		return mcp.NewToolResultError("username is required"), nil
	}
	startDateStr, err := request.RequireString("start_date")
	if err != nil {
		return mcp.NewToolResultError("start_date is required"), nil
	}
	endDateStr, err := request.RequireString("end_date")
	if err != nil {
		return mcp.NewToolResultError("end_date is required"), nil
	}

	start, err := time.Parse(time.RFC3339, startDateStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start_date: %v", err)), nil
	}
	end, err := time.Parse(time.RFC3339, endDateStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid end_date: %v", err)), nil
	}

	userID, err := s.store.GetUserID(username)
	if errors.Is(err, sql.ErrNoRows) {
		return mcp.NewToolResultError("user not found"), nil
	} else if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}

	captures, err := s.store.GetCapturesByTimeRange(userID, start, end)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}

	if len(captures) == 0 {
		return mcp.NewToolResultText("No captures found for this time range."), nil
	}

	var lines []string
	for _, c := range captures {
		transcript := c.VoiceTranscript
		if transcript == "" {
			transcript = "(no transcript)"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", c.CreatedAt.Format(time.RFC3339), transcript))
	}

	return mcp.NewToolResultText(fmt.Sprintf("Found %d captures:\n%s", len(captures), strings.Join(lines, "\n"))), nil
}

// HTTPHandler builds the streamable HTTP server with the get_captures tool
// registered.
func (s *Server) HTTPHandler() *server.StreamableHTTPServer {
	mcpServer := server.NewMCPServer("CaptureBox", "1.0.0")

	tool := mcp.NewTool("get_captures",
		mcp.WithDescription("Retrieve capture transcripts for a user within a specific time range."),
		mcp.WithString("username", mcp.Required(), mcp.Description("The username to fetch captures for")),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("Start of the time range (RFC3339), e.g. 2023-01-01T00:00:00Z")),
		mcp.WithString("end_date", mcp.Required(), mcp.Description("End of the time range (RFC3339), e.g. 2023-12-31T23:59:59Z")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	mcpServer.AddTool(tool, s.getCapturesHandler)

	return server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true))
}
