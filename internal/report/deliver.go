package report

import (
	"context"
	"errors"
	"time"

	"github.com/hurttlocker/scamintel/internal/observe"
	"github.com/hurttlocker/scamintel/internal/session"
)

// ErrNotDue is returned by Deliver when the session does not yet qualify.
var ErrNotDue = errors.New("report not due")

// Reporter sends session reports at most once per session.
type Reporter struct {
	Sessions *session.Manager
	Client   *Client
	Metrics  *observe.Metrics
	Now      func() time.Time
}

// Deliver sends the report for id. Unless force is set the session must
// satisfy ShouldSend. The check and the reported mark are one step under the
// session lock, so concurrent callers send at most once; the mark is cleared
// if delivery fails so a later turn can retry.
func (r *Reporter) Deliver(ctx context.Context, id string, force bool) (*Payload, *Response, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	due := ShouldSend
	if force {
		due = nil
	}
	st, claimed, err := r.Sessions.ClaimReport(ctx, id, due)
	if err != nil {
		return nil, nil, err
	}
	if !claimed {
		return nil, nil, ErrNotDue
	}
	payload := BuildPayload(st, now())

	resp, err := r.Client.Send(ctx, payload)
	if err != nil {
		r.Metrics.Callback("error")
		if _, resetErr := r.Sessions.MarkReported(ctx, id, false); resetErr != nil {
			return &payload, nil, errors.Join(err, resetErr)
		}
		return &payload, nil, err
	}
	r.Metrics.Callback("sent")
	return &payload, resp, nil
}
