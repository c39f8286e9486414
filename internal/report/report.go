// Package report builds the final intelligence report for a session and
// delivers it to a callback endpoint.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/session"
)

const (
	// MinTurns sends a report for any flagged session after this many turns.
	MinTurns = 6
	// MinTurnsWithIntel sends earlier once critical intelligence is present.
	MinTurnsWithIntel = 3
	// MaxEngagementScore caps EngagementScore.
	MaxEngagementScore = 1000

	defaultDuration = 120 * time.Second
	noteKeywords    = 5
)

// Payload is the JSON body delivered to the callback endpoint.
type Payload struct {
	SessionID              string            `json:"sessionId"`
	ScamDetected           bool              `json:"scamDetected"`
	TotalMessagesExchanged int               `json:"totalMessagesExchanged"`
	ExtractedIntelligence  intel.Record      `json:"extractedIntelligence"`
	EngagementMetrics      EngagementMetrics `json:"engagementMetrics"`
	AgentNotes             string            `json:"agentNotes"`
}

// EngagementMetrics summarises how long the counterpart was kept engaged.
type EngagementMetrics struct {
	TotalMessagesExchanged    int `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int `json:"engagementDurationSeconds"`
}

// BuildPayload renders the report for st as of now. A session without a
// start time reports a nominal two-minute engagement.
func BuildPayload(st *session.State, now time.Time) Payload {
	duration := defaultDuration
	if !st.StartedAt.IsZero() {
		duration = st.Duration(now)
	}
	return Payload{
		SessionID:              st.ID,
		ScamDetected:           st.ScamDetected,
		TotalMessagesExchanged: st.Turns,
		ExtractedIntelligence:  st.Intelligence.Clone(),
		EngagementMetrics: EngagementMetrics{
			TotalMessagesExchanged:    st.Turns,
			EngagementDurationSeconds: int(duration / time.Second),
		},
		AgentNotes: AgentNotes(st),
	}
}

// AgentNotes is a one-line human summary of what was collected.
func AgentNotes(st *session.State) string {
	rec := st.Intelligence
	var parts []string
	if v := rec.Emails; len(v) > 0 {
		parts = append(parts, "Emails: "+strings.Join(v, ", "))
	}
	if v := rec.UPIIDs; len(v) > 0 {
		parts = append(parts, "UPI: "+strings.Join(v, ", "))
	}
	if v := rec.PhoneNumbers; len(v) > 0 {
		parts = append(parts, "Phone: "+strings.Join(v, ", "))
	}
	if n := len(rec.PhishingLinks); n > 0 {
		parts = append(parts, fmt.Sprintf("Links: %d", n))
	}
	if n := len(rec.BankAccounts); n > 0 {
		parts = append(parts, fmt.Sprintf("Accounts: %d", n))
	}
	if v := rec.SuspiciousKeywords; len(v) > 0 {
		if len(v) > noteKeywords {
			v = v[:noteKeywords]
		}
		parts = append(parts, "Keywords: "+strings.Join(v, ", "))
	}
	parts = append(parts, fmt.Sprintf("Turns: %d", st.Turns))
	scam := "NO"
	if st.ScamDetected {
		scam = "YES"
	}
	parts = append(parts, "Scam: "+scam)
	return strings.Join(parts, " | ")
}

// HasCriticalIntel reports whether any actionable identifier was collected.
// Keywords alone are not critical.
func HasCriticalIntel(rec intel.Record) bool {
	return len(rec.UPIIDs) > 0 ||
		len(rec.PhoneNumbers) > 0 ||
		len(rec.Emails) > 0 ||
		len(rec.PhishingLinks) > 0 ||
		len(rec.BankAccounts) > 0
}

// ShouldSend reports whether the session is due for its report: it must be
// a detected scam that has not been reported, and either long enough or
// already holding critical intelligence.
func ShouldSend(st *session.State) bool {
	if st == nil || !st.ScamDetected || st.CallbackSent {
		return false
	}
	return st.Turns >= MinTurns ||
		(st.Turns >= MinTurnsWithIntel && HasCriticalIntel(st.Intelligence))
}

// EngagementScore weighs turns and collected identifiers, capped at
// MaxEngagementScore.
func EngagementScore(st *session.State) int {
	rec := st.Intelligence
	score := st.Turns*10 +
		len(rec.UPIIDs)*50 +
		len(rec.PhoneNumbers)*40 +
		len(rec.Emails)*35 +
		len(rec.PhishingLinks)*30 +
		len(rec.BankAccounts)*60
	return min(score, MaxEngagementScore)
}

// Analytics is the per-session dashboard view.
type Analytics struct {
	SessionID       string       `json:"sessionId"`
	Status          string       `json:"status"`
	EngagementScore int          `json:"engagementScore"`
	Turns           int          `json:"messagesExchanged"`
	ScamDetected    bool         `json:"scamDetected"`
	DurationSeconds int          `json:"durationSeconds"`
	DataExtracted   int          `json:"dataExtracted"`
	TimeWasted      string       `json:"timeWasted"`
	Intelligence    intel.Record `json:"intelligence"`
}

// BuildAnalytics summarises st as of now.
func BuildAnalytics(st *session.State, now time.Time) Analytics {
	rec := st.Intelligence
	return Analytics{
		SessionID:       st.ID,
		Status:          string(st.Status),
		EngagementScore: EngagementScore(st),
		Turns:           st.Turns,
		ScamDetected:    st.ScamDetected,
		DurationSeconds: int(st.Duration(now) / time.Second),
		DataExtracted:   rec.Len() - len(rec.SuspiciousKeywords),
		TimeWasted:      fmt.Sprintf("~%d minutes", st.Turns*2),
		Intelligence:    rec.Clone(),
	}
}
