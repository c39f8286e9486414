package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/scamintel/internal/intel"
)

var (
	extractMode        string
	extractHistoryPath string
)

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Extract intelligence from one message",
	Long: `Extract intelligence from a single message and print it as JSON.

The message is taken from the arguments, or from stdin when no argument
(or "-") is given.`,
	Example: `  scamintel extract "Call +91-9876543210 or use account 1234567890123456"
  echo "pay to verify@ybl" | scamintel extract --mode pattern`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractMode, "mode", "hybrid", "pattern or hybrid")
	extractCmd.Flags().StringVar(&extractHistoryPath, "history", "", "JSON file with earlier turns used as context")
}

func runExtract(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var history []intel.Message
	if extractHistoryPath != "" {
		t, err := readTranscriptFile(extractHistoryPath)
		if err != nil {
			return err
		}
		history = t.Messages
	}

	pipeline, err := newPipeline(resolved, logger, nil)
	if err != nil {
		return err
	}

	var rec intel.Record
	switch extractMode {
	case "pattern":
		rec = pipeline.ExtractPattern(text)
	case "hybrid":
		rec = pipeline.Extract(cmd.Context(), text, history)
	default:
		return fmt.Errorf("invalid --mode %q (expected pattern or hybrid)", extractMode)
	}
	return writeJSON(cmd.OutOrStdout(), rec)
}

func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// transcript is a recorded conversation. Files may hold either a bare array
// of messages or an object with an optional session id.
type transcript struct {
	SessionID string          `json:"sessionId"`
	Messages  []intel.Message `json:"messages"`
}

func readTranscriptFile(path string) (transcript, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return transcript{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return parseTranscript(data)
}

func parseTranscript(data []byte) (transcript, error) {
	trimmed := strings.TrimSpace(string(data))
	var t transcript
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &t.Messages); err != nil {
			return t, fmt.Errorf("parsing transcript: %w", err)
		}
		return t, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &t); err != nil {
		return t, fmt.Errorf("parsing transcript: %w", err)
	}
	return t, nil
}
