package intel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	// Counterpart is the remote party whose text is mined for intelligence.
	Counterpart Sender = "counterpart"
	// Operator is our side of the conversation. Operator turns are never mined.
	Operator Sender = "operator"
)

// ParseSender maps wire values onto a Sender. "scammer" is accepted as an
// alias for counterpart and "user"/"agent" as aliases for operator.
func ParseSender(s string) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "counterpart", "scammer":
		return Counterpart, nil
	case "operator", "user", "agent":
		return Operator, nil
	default:
		return "", fmt.Errorf("unknown sender %q", s)
	}
}

// UnmarshalJSON accepts any alias understood by ParseSender.
func (s *Sender) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSender(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Message is one recorded conversation turn. It is a value and is never
// modified after it is recorded.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// FromCounterpart reports whether the message was authored by the counterpart.
func (m Message) FromCounterpart() bool {
	return m.Sender == Counterpart
}
