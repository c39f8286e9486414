package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/report"
	"github.com/hurttlocker/scamintel/internal/session"
)

func TestNewServer(t *testing.T) {
	srv := NewServer(ServerConfig{})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

// callTool is a helper that invokes an MCP tool by building a CallToolRequest.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	// Parse the JSON-RPC response
	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}

	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{
		IsError: resp.Result.IsError,
	}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}

	return callResult
}

func callResource(t *testing.T, srv *server.MCPServer, uri string) string {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "resources/read",
		"params": map[string]interface{}{
			"uri": uri,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Contents []struct {
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result.Contents) == 0 {
		t.Fatalf("no resource contents for %s", uri)
	}
	return resp.Result.Contents[0].Text
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func decodeText(t *testing.T, result *mcplib.CallToolResult, v interface{}) {
	t.Helper()
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", getTextContent(t, result))
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), v); err != nil {
		t.Fatalf("decoding tool result: %v", err)
	}
}

func TestExtractTool(t *testing.T) {
	srv := NewServer(ServerConfig{})

	result := callTool(t, srv, "intel_extract", map[string]interface{}{
		"text": "Call +91-9876543210 or use account 1234567890123456",
		"mode": "pattern",
	})

	var rec intel.Record
	decodeText(t, result, &rec)
	if !rec.Contains(intel.PhoneNumbers, "+91-9876543210") {
		t.Errorf("expected phone, got %v", rec.PhoneNumbers)
	}
	if !rec.Contains(intel.BankAccounts, "1234567890123456") {
		t.Errorf("expected bank account, got %v", rec.BankAccounts)
	}
	if len(rec.PhoneNumbers) != 1 {
		t.Errorf("bank digits must not yield extra phones: %v", rec.PhoneNumbers)
	}

	// All six categories are always present.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &raw); err != nil {
		t.Fatal(err)
	}
	for _, c := range intel.Categories {
		if _, ok := raw[string(c)]; !ok {
			t.Errorf("missing category %s", c)
		}
	}
}

func TestExtractTool_Errors(t *testing.T) {
	srv := NewServer(ServerConfig{})

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing text", map[string]interface{}{}},
		{"bad mode", map[string]interface{}{"text": "hi", "mode": "llm-only"}},
		{"bad history", map[string]interface{}{"text": "hi", "history": []interface{}{
			map[string]interface{}{"sender": "robot", "text": "x"},
		}}},
		{"too long", map[string]interface{}{"text": strings.Repeat("a", maxTextBytes+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !callTool(t, srv, "intel_extract", tt.args).IsError {
				t.Error("expected tool error")
			}
		})
	}
}

func TestTurnTool_Accumulates(t *testing.T) {
	srv := NewServer(ServerConfig{})

	first := "Your KYC expired. Call 9876543210 immediately"
	callTool(t, srv, "intel_turn", map[string]interface{}{
		"session_id": "sess-1",
		"text":       first,
		"sender":     "scammer",
	})

	result := callTool(t, srv, "intel_turn", map[string]interface{}{
		"session_id": "sess-1",
		"text":       "Pay the penalty to verify@ybl",
		"history": []interface{}{
			map[string]interface{}{"sender": "scammer", "text": first},
			map[string]interface{}{"sender": "user", "text": "my number is 9123456789"},
		},
	})

	var out turnResult
	decodeText(t, result, &out)
	st := out.Session
	if st.Turns != 2 || st.Status != session.StatusActive {
		t.Fatalf("turns=%d status=%s", st.Turns, st.Status)
	}
	if !st.Intelligence.Contains(intel.PhoneNumbers, "9876543210") || !st.Intelligence.Contains(intel.UPIIDs, "verify@ybl") {
		t.Errorf("intelligence lost across turns: %+v", st.Intelligence)
	}
	if st.Intelligence.Contains(intel.PhoneNumbers, "9123456789") {
		t.Error("operator turns must not be mined")
	}
	if !strings.Contains(out.AgentNotes, "UPI: verify@ybl") || !strings.Contains(out.AgentNotes, "Turns: 2") {
		t.Errorf("agent notes = %q", out.AgentNotes)
	}
	if out.Report != nil {
		t.Error("no report without a configured reporter")
	}
}

func TestSessionAndFlagTools(t *testing.T) {
	srv := NewServer(ServerConfig{})

	if !callTool(t, srv, "intel_session", map[string]interface{}{"session_id": "nope"}).IsError {
		t.Error("expected not-found error")
	}
	if !callTool(t, srv, "intel_flag", map[string]interface{}{"session_id": "nope"}).IsError {
		t.Error("expected not-found error")
	}

	callTool(t, srv, "intel_turn", map[string]interface{}{"session_id": "s", "text": "send otp to fraud@example.com"})

	var flagged session.State
	decodeText(t, callTool(t, srv, "intel_flag", map[string]interface{}{"session_id": "s"}), &flagged)
	if flagged.Status != session.StatusFlagged || !flagged.ScamDetected {
		t.Fatalf("flag result: %+v", flagged)
	}

	var out sessionResult
	decodeText(t, callTool(t, srv, "intel_session", map[string]interface{}{"session_id": "s"}), &out)
	if !out.Session.Intelligence.Contains(intel.Emails, "fraud@example.com") {
		t.Errorf("emails = %v", out.Session.Intelligence.Emails)
	}
	if out.Analytics.EngagementScore != 45 {
		t.Errorf("engagement score = %d, want 45", out.Analytics.EngagementScore)
	}
	if out.ReportDue {
		t.Error("one turn is not enough for a report")
	}
}

func TestReportTool_Preview(t *testing.T) {
	srv := NewServer(ServerConfig{})
	callTool(t, srv, "intel_turn", map[string]interface{}{"session_id": "s", "text": "urgent, visit http://kyc-check.xyz"})

	var p report.Payload
	decodeText(t, callTool(t, srv, "intel_report", map[string]interface{}{"session_id": "s"}), &p)
	if p.SessionID != "s" || p.TotalMessagesExchanged != 1 {
		t.Errorf("payload = %+v", p)
	}
	if !p.ExtractedIntelligence.Contains(intel.PhishingLinks, "http://kyc-check.xyz") {
		t.Errorf("links = %v", p.ExtractedIntelligence.PhishingLinks)
	}

	if !callTool(t, srv, "intel_report", map[string]interface{}{"session_id": "s", "send": true}).IsError {
		t.Error("send without a callback url should fail")
	}
}

func TestTurnTool_AutoReport(t *testing.T) {
	var calls atomic.Int32
	var got report.Payload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer ts.Close()

	srv := NewServer(ServerConfig{
		Reporter: &report.Reporter{Client: report.NewClient(report.ClientConfig{URL: ts.URL})},
	})

	turn := func(text string) turnResult {
		var out turnResult
		decodeText(t, callTool(t, srv, "intel_turn", map[string]interface{}{"session_id": "s", "text": text}), &out)
		return out
	}

	turn("Sir, pay the fine to verify@ybl")
	callTool(t, srv, "intel_flag", map[string]interface{}{"session_id": "s"})
	if out := turn("Do it now"); out.Report != nil {
		t.Fatal("report sent before three turns")
	}

	out := turn("Last warning, call 9876543210")
	if out.Report == nil || !out.Report.Sent {
		t.Fatalf("expected automatic report, got %+v", out.Report)
	}
	if !out.Session.CallbackSent {
		t.Error("session should be marked reported")
	}
	if got.SessionID != "s" || got.TotalMessagesExchanged != 3 || !got.ScamDetected {
		t.Errorf("delivered payload = %+v", got)
	}

	if out := turn("Hello?"); out.Report != nil {
		t.Error("report must be sent once")
	}
	if calls.Load() != 1 {
		t.Errorf("callback calls = %d, want 1", calls.Load())
	}

	// Manual resend is always allowed.
	var info deliveryInfo
	decodeText(t, callTool(t, srv, "intel_report", map[string]interface{}{"session_id": "s", "send": true}), &info)
	if !info.Sent || calls.Load() != 2 {
		t.Errorf("manual send: %+v calls=%d", info, calls.Load())
	}
}

func TestStatsTool(t *testing.T) {
	srv := NewServer(ServerConfig{})
	callTool(t, srv, "intel_turn", map[string]interface{}{"session_id": "a", "text": "call 9876543210"})
	callTool(t, srv, "intel_turn", map[string]interface{}{"session_id": "b", "text": "pay verify@ybl"})

	var stats struct {
		Sessions        int            `json:"sessions"`
		IntelByCategory map[string]int `json:"intel_by_category"`
	}
	decodeText(t, callTool(t, srv, "intel_stats", nil), &stats)
	if stats.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", stats.Sessions)
	}
	if stats.IntelByCategory["upiIds"] != 1 || stats.IntelByCategory["phoneNumbers"] != 1 {
		t.Errorf("by category = %v", stats.IntelByCategory)
	}

	text := callResource(t, srv, "scamintel://stats")
	if !strings.Contains(text, `"sessions": 2`) {
		t.Errorf("stats resource = %s", text)
	}
}

func TestVocabularyResource(t *testing.T) {
	srv := NewServer(ServerConfig{})
	text := callResource(t, srv, "scamintel://vocabulary")

	var vocab struct {
		Keywords       []string `json:"keywords"`
		PaymentHandles []string `json:"payment_handles"`
		HandlePolicy   string   `json:"handle_policy"`
		ExternalReady  bool     `json:"external_ready"`
	}
	if err := json.Unmarshal([]byte(text), &vocab); err != nil {
		t.Fatalf("decoding vocabulary: %v", err)
	}
	if len(vocab.Keywords) == 0 || len(vocab.PaymentHandles) == 0 {
		t.Fatalf("empty vocabulary: %s", text)
	}
	if vocab.HandlePolicy != "upi" {
		t.Errorf("handle policy = %q", vocab.HandlePolicy)
	}
	if vocab.ExternalReady {
		t.Error("no external extractor configured")
	}
}
