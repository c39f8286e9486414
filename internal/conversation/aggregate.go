// Package conversation folds a multi-turn exchange into one accumulated
// intelligence record.
package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/hurttlocker/scamintel/internal/extract"
	"github.com/hurttlocker/scamintel/internal/intel"
)

// Aggregator mines every counterpart turn of a conversation.
type Aggregator struct {
	pipeline *extract.Pipeline
	logger   *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the aggregator logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an aggregator around pipeline. A nil pipeline runs
// pattern extraction only.
func NewAggregator(pipeline *extract.Pipeline, opts ...Option) *Aggregator {
	if pipeline == nil {
		pipeline = extract.NewPipeline(nil)
	}
	a := &Aggregator{pipeline: pipeline, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Pipeline returns the underlying extraction pipeline.
func (a *Aggregator) Pipeline() *extract.Pipeline {
	return a.pipeline
}

// Aggregate returns prior grown by the intelligence in history and msg.
//
// Every counterpart turn in history goes through the pattern extractor; msg
// goes through the full hybrid pipeline with history as context. The turn
// records are unioned and cleansed together, then unioned with prior. prior
// itself is never cleansed again, so the result always contains every value
// of prior and redelivering the same turn leaves it unchanged.
//
// Operator turns are never mined. A msg without a sender is treated as a
// counterpart message.
func (a *Aggregator) Aggregate(ctx context.Context, history []intel.Message, msg intel.Message, prior intel.Record) intel.Record {
	turns := make([]intel.Record, 0, len(history)+1)
	for _, m := range history {
		if !m.FromCounterpart() {
			continue
		}
		turns = append(turns, a.pipeline.ExtractPattern(m.Text))
	}
	if msg.Sender != intel.Operator {
		turns = append(turns, a.pipeline.Extract(ctx, msg.Text, history))
	}

	current := a.pipeline.Pattern().Cleanse(intel.UnionAll(turns...))
	next := prior.Union(current)

	a.logger.Debug("conversation aggregated",
		zap.Int("history_turns", len(history)),
		zap.Int("turn_values", current.Len()),
		zap.Int("prior_values", prior.Len()),
		zap.Int("accumulated_values", next.Len()))
	return next
}
