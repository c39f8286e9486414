package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerVocabularyResource(s *server.MCPServer, h *handlers) {
	resource := mcp.NewResource(
		"scamintel://vocabulary",
		"Extraction Vocabulary",
		mcp.WithResourceDescription("Suspicious keyword phrases, payment provider handles and the handle policy used by the pattern extractor."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		pattern := h.pipeline.Pattern()
		payload := map[string]interface{}{
			"keywords":        pattern.Keywords(),
			"payment_handles": pattern.PaymentHandles(),
			"handle_policy":   pattern.Policy(),
			"external":        h.pipeline.External().Name(),
			"external_ready":  h.pipeline.External().Ready(),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerStatsResource(s *server.MCPServer, h *handlers) {
	resource := mcp.NewResource(
		"scamintel://stats",
		"Session Statistics",
		mcp.WithResourceDescription("Live session counts, collected intelligence per category and freshness."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := h.observe.GetStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
