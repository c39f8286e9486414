// Package mcp provides a Model Context Protocol server for scamintel.
//
// It exposes extraction, per-session accumulation, flagging and reporting as
// MCP tools, and the extraction vocabulary and session statistics as MCP
// resources. Supports stdio transport and streamable HTTP for remote access.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/scamintel/internal/conversation"
	"github.com/hurttlocker/scamintel/internal/extract"
	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/observe"
	"github.com/hurttlocker/scamintel/internal/report"
	"github.com/hurttlocker/scamintel/internal/session"
)

// maxTextBytes bounds a single message accepted over MCP.
const maxTextBytes = 64 << 10

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Pipeline *extract.Pipeline // nil runs pattern extraction only
	Sessions *session.Manager  // nil uses an in-memory store
	Reporter *report.Reporter  // nil disables callback delivery
	Metrics  *observe.Metrics
	Logger   *zap.Logger
	Version  string // version string for MCP server info
}

type handlers struct {
	pipeline *extract.Pipeline
	sessions *session.Manager
	reporter *report.Reporter
	observe  *observe.Engine
	logger   *zap.Logger
}

// NewServer creates a configured MCP server with all scamintel tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pipeline := cfg.Pipeline
	if pipeline == nil {
		pipeline = extract.NewPipeline(nil)
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = session.NewManager(session.NewMemoryStore(0), conversation.NewAggregator(pipeline))
	}
	reporter := cfg.Reporter
	if reporter != nil && reporter.Sessions == nil {
		reporter.Sessions = sessions
	}

	h := &handlers{
		pipeline: pipeline,
		sessions: sessions,
		reporter: reporter,
		observe:  observe.NewEngine(sessions, cfg.Metrics),
		logger:   logger,
	}

	s := server.NewMCPServer(
		"scamintel",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	// Register tools
	registerExtractTool(s, h)
	registerTurnTool(s, h)
	registerSessionTool(s, h)
	registerFlagTool(s, h)
	registerReportTool(s, h)
	registerStatsTool(s, h)

	// Register resources
	registerVocabularyResource(s, h)
	registerStatsResource(s, h)

	return s
}

// --- Tools ---

var historyItems = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sender": map[string]any{"type": "string", "description": "counterpart|scammer or operator|user"},
		"text":   map[string]any{"type": "string"},
	},
	"required": []string{"sender", "text"},
}

func registerExtractTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("intel_extract",
		mcp.WithDescription("Extract scam intelligence (phone numbers, UPI IDs, bank accounts, links, emails, suspicious keywords) from one message. Stateless."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message text to analyze"),
		),
		mcp.WithArray("history",
			mcp.Description("Earlier turns, oldest first, used as context for the external extractor"),
			mcp.Items(historyItems),
		),
		mcp.WithString("mode",
			mcp.Description("pattern (rules only) or hybrid (rules plus external model when configured). Default: hybrid"),
			mcp.Enum("pattern", "hybrid"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := requireText(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		history, err := decodeHistory(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var rec intel.Record
		switch mode := req.GetString("mode", "hybrid"); mode {
		case "pattern":
			rec = h.pipeline.ExtractPattern(text)
		case "hybrid", "":
			rec = h.pipeline.Extract(ctx, text, history)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("invalid mode %q (expected pattern or hybrid)", mode)), nil
		}
		return jsonResult(rec)
	})
}

type turnResult struct {
	Session    *session.State `json:"session"`
	AgentNotes string         `json:"agentNotes"`
	Report     *deliveryInfo  `json:"report,omitempty"`
}

type deliveryInfo struct {
	Sent     bool             `json:"sent"`
	Error    string           `json:"error,omitempty"`
	Payload  *report.Payload  `json:"payload,omitempty"`
	Response *report.Response `json:"response,omitempty"`
}

func registerTurnTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("intel_turn",
		mcp.WithDescription("Record one conversation turn for a session and return the accumulated intelligence. Intelligence never shrinks across turns. When the session qualifies and a callback is configured, the final report is sent automatically."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Conversation/session identifier"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Newest message text"),
		),
		mcp.WithString("sender",
			mcp.Description("Author of the newest message: counterpart (default) or operator"),
		),
		mcp.WithArray("history",
			mcp.Description("Earlier turns, oldest first"),
			mcp.Items(historyItems),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		text, err := requireText(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		history, err := decodeHistory(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sender := intel.Counterpart
		if raw := req.GetString("sender", ""); raw != "" {
			if sender, err = intel.ParseSender(raw); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		msg := intel.Message{Sender: sender, Text: text, Timestamp: time.Now().UTC()}
		st, err := h.sessions.ProcessTurn(ctx, id, history, msg)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("turn error: %v", err)), nil
		}

		out := turnResult{Session: st, AgentNotes: report.AgentNotes(st)}
		if h.reporter != nil && h.reporter.Client.Enabled() && report.ShouldSend(st) {
			out.Report = h.deliver(ctx, id, false)
			if out.Report.Sent {
				out.Session.CallbackSent = true
			}
		}
		return jsonResult(out)
	})
}

type sessionResult struct {
	Session    *session.State   `json:"session"`
	AgentNotes string           `json:"agentNotes"`
	Analytics  report.Analytics `json:"analytics"`
	ReportDue  bool             `json:"reportDue"`
}

func registerSessionTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("intel_session",
		mcp.WithDescription("Show a session's accumulated intelligence, status and engagement analytics."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		st, err := h.sessions.Get(ctx, id)
		if err != nil {
			return sessionError(err), nil
		}
		return jsonResult(sessionResult{
			Session:    st,
			AgentNotes: report.AgentNotes(st),
			Analytics:  report.BuildAnalytics(st, time.Now()),
			ReportDue:  report.ShouldSend(st),
		})
	})
}

func registerFlagTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("intel_flag",
		mcp.WithDescription("Mark an active session as a confirmed scam. Accumulated intelligence is kept."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		st, err := h.sessions.Flag(ctx, id)
		if err != nil {
			return sessionError(err), nil
		}
		h.logger.Info("session flagged", zap.String("session", id))
		return jsonResult(st)
	})
}

func registerReportTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("intel_report",
		mcp.WithDescription("Build the final intelligence report for a session. With send=true, deliver it to the configured callback endpoint."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithBoolean("send",
			mcp.Description("Deliver the report to the callback endpoint (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		st, err := h.sessions.Get(ctx, id)
		if err != nil {
			return sessionError(err), nil
		}

		if !req.GetBool("send", false) {
			return jsonResult(report.BuildPayload(st, time.Now()))
		}
		if h.reporter == nil || !h.reporter.Client.Enabled() {
			return mcp.NewToolResultError("no callback url configured"), nil
		}
		info := h.deliver(ctx, id, true)
		if !info.Sent {
			return mcp.NewToolResultError(fmt.Sprintf("report delivery failed: %s", info.Error)), nil
		}
		return jsonResult(info)
	})
}

func registerStatsTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("intel_stats",
		mcp.WithDescription("Aggregate statistics over live sessions: counts by status, collected intelligence per category, freshness and alerts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := h.observe.GetStats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		return jsonResult(stats)
	})
}

func (h *handlers) deliver(ctx context.Context, id string, force bool) *deliveryInfo {
	payload, resp, err := h.reporter.Deliver(ctx, id, force)
	info := &deliveryInfo{Payload: payload, Response: resp, Sent: err == nil}
	if err != nil {
		info.Error = err.Error()
		h.logger.Warn("report delivery failed", zap.String("session", id), zap.Error(err))
	}
	return info
}

// --- helpers ---

func requireText(req mcp.CallToolRequest) (string, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return "", errors.New("text is required")
	}
	// Strip null bytes from content
	text = strings.ReplaceAll(text, "\x00", "")
	if len(text) > maxTextBytes {
		return "", fmt.Errorf("text too long (%d bytes, max %d)", len(text), maxTextBytes)
	}
	return text, nil
}

func decodeHistory(req mcp.CallToolRequest) ([]intel.Message, error) {
	raw, ok := req.GetArguments()["history"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid history: %w", err)
	}
	var history []intel.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("invalid history: %w", err)
	}
	return history, nil
}

func sessionError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrExpired):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("session error: %v", err))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
