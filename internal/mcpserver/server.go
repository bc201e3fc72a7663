// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the nursing-note timeline to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hyorim/carenotes/internal/controller"
	"github.com/hyorim/carenotes/internal/models"
	"github.com/hyorim/carenotes/internal/palette"
	"github.com/hyorim/carenotes/internal/patients"
	"github.com/hyorim/carenotes/internal/timeline"
)

const (
	paletteURI      = "carenotes://palette"
	recordFormatURI = "carenotes://record-format"
)

// Server wraps the MCP server with timeline tools.
type Server struct {
	mcp       *server.MCPServer
	fetcher   controller.Fetcher
	directory patients.Directory
	palette   *palette.Palette
	fields    []string
}

// New creates a new MCP server with all timeline tools registered.
// directory may be nil, in which case list_patients returns an empty list.
func New(fetcher controller.Fetcher, directory patients.Directory, pal *palette.Palette, envelopeFields ...string) *Server {
	if pal == nil {
		pal = palette.Default()
	}
	s := &Server{fetcher: fetcher, directory: directory, palette: pal, fields: envelopeFields}

	s.mcp = server.NewMCPServer(
		"carenotes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_patients",
		mcp.WithDescription("List patients in the directory, optionally only those linked to a caregiver."),
		mcp.WithString("caregiver", mcp.Description("Optional caregiver account")),
	), s.listPatients)

	s.mcp.AddTool(mcp.NewTool("patient_timeline",
		mcp.WithDescription("Dated nursing notes of a patient, latest first. "+
			"A query keeps only the days where a keyword or detail contains it (case-insensitive)."),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient id (e.g. 25-0000032)")),
		mcp.WithString("query", mcp.Description("Optional search query")),
	), s.patientTimeline)

	s.mcp.AddTool(mcp.NewTool("keyword_stats",
		mcp.WithDescription("Keyword frequencies across the (optionally filtered) notes of a patient, most frequent first."),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient id")),
		mcp.WithString("query", mcp.Description("Optional search query")),
	), s.keywordStats)

	s.mcp.AddTool(mcp.NewTool("highlight_day",
		mcp.WithDescription("Items of one day with keyword colors and the query occurrences split into highlighted segments."),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient id")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("query", mcp.Description("Optional search query to highlight")),
	), s.highlightDay)

	s.mcp.AddResource(
		mcp.NewResource(paletteURI, "Keyword Palette",
			mcp.WithResourceDescription("Display color of each nursing-note keyword and the fallback color."),
			mcp.WithMIMEType("application/json"),
		),
		s.readPaletteResource,
	)

	s.mcp.AddResource(
		mcp.NewResource(recordFormatURI, "Nursing Record Format",
			mcp.WithResourceDescription("Shape of nursing-note payloads and raw record files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// filtered fetches a patient's notes and applies query.
func (s *Server) filtered(ctx context.Context, patientID, query string) ([]models.DayEntry, error) {
	raw, err := s.fetcher.FetchNotes(ctx, patientID)
	if err != nil {
		return nil, err
	}
	idx := timeline.NewIndex(s.fields...)
	idx.Load(raw)
	return timeline.Apply(slices.Collect(idx.Ascending()), query), nil
}

// optionalString returns the string argument key, or "" when it is absent.
func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

type timelineDay struct {
	Date  string            `json:"date"`
	Label string            `json:"label"`
	Items []models.NoteItem `json:"items"`
}

func (s *Server) listPatients(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.directory == nil {
		return jsonResult([]models.Patient{})
	}
	var (
		list []models.Patient
		err  error
	)
	if caregiver := optionalString(req, "caregiver"); caregiver != "" {
		list, err = s.directory.ListForCaregiver(caregiver)
	} else {
		list, err = s.directory.List()
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list)
}

func (s *Server) patientTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patientID, err := req.RequireString("patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.filtered(ctx, patientID, optionalString(req, "query"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch notes for %s: %v", patientID, err)), nil
	}
	days := make([]timelineDay, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		days = append(days, timelineDay{Date: e.Date, Label: timeline.DateLabel(e.Date), Items: e.Items})
	}
	return jsonResult(days)
}

func (s *Server) keywordStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patientID, err := req.RequireString("patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.filtered(ctx, patientID, optionalString(req, "query"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch notes for %s: %v", patientID, err)), nil
	}
	return jsonResult(timeline.Aggregate(entries))
}

func (s *Server) highlightDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patientID, err := req.RequireString("patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query := optionalString(req, "query")
	entries, err := s.filtered(ctx, patientID, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch notes for %s: %v", patientID, err)), nil
	}
	e, ok := timeline.Find(entries, date)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no notes for %s on %s", patientID, date)), nil
	}
	return jsonResult(timeline.Group(timeline.Render(e.Items, query, s.palette)))
}

func (s *Server) readPaletteResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(s.palette.Config(), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      paletteURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readRecordFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      recordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormat,
		},
	}, nil
}
