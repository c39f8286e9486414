package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/observe"
	"github.com/hurttlocker/scamintel/internal/report"
	"github.com/hurttlocker/scamintel/internal/session"
)

var (
	transcriptSession string
	transcriptFlag    bool
	transcriptSend    bool
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript <file|->",
	Short: "Replay a recorded conversation through a session",
	Long: `Replay a conversation turn by turn through the session accumulator and
print the final session, agent notes and analytics.

Every counterpart message is one turn, mined with all earlier messages as
history. Operator messages are context only; messages without a sender
count as counterpart.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscript,
}

func init() {
	transcriptCmd.Flags().StringVar(&transcriptSession, "session", "", "Session id (default: from file, else a new UUID)")
	transcriptCmd.Flags().BoolVar(&transcriptFlag, "flag", false, "Flag the session as a scam after the first turn")
	transcriptCmd.Flags().BoolVar(&transcriptSend, "send", false, "Send the final report when the session qualifies")
}

type transcriptResult struct {
	Session    *session.State   `json:"session"`
	AgentNotes string           `json:"agentNotes"`
	Analytics  report.Analytics `json:"analytics"`
	Report     *report.Payload  `json:"report,omitempty"`
}

func runTranscript(cmd *cobra.Command, args []string) error {
	t, err := readTranscriptFile(args[0])
	if err != nil {
		return err
	}
	id := firstNonEmpty(transcriptSession, t.SessionID, uuid.NewString())

	ctx := cmd.Context()
	a, err := newApp(ctx, resolved, logger, observe.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	var st *session.State
	for i, msg := range t.Messages {
		if msg.Sender == intel.Operator {
			continue
		}
		st, err = a.sessions.ProcessTurn(ctx, id, t.Messages[:i], msg)
		if err != nil {
			return err
		}
		if transcriptFlag && st.Status == session.StatusActive {
			if st, err = a.sessions.Flag(ctx, id); err != nil {
				return err
			}
		}
	}
	if st == nil {
		return fmt.Errorf("transcript has no counterpart messages")
	}

	out := transcriptResult{
		Session:    st,
		AgentNotes: report.AgentNotes(st),
		Analytics:  report.BuildAnalytics(st, time.Now()),
	}
	if transcriptSend {
		payload, _, err := a.reporter.Deliver(ctx, id, false)
		switch {
		case errors.Is(err, report.ErrNotDue):
			logger.Info("report not due", zap.String("session", id), zap.Int("turns", st.Turns))
		case err != nil:
			return fmt.Errorf("sending report: %w", err)
		default:
			out.Report = payload
		}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
