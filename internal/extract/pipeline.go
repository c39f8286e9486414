package extract

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/observe"
)

// Pipeline runs the hybrid extraction for one message: the pattern extractor
// and the external extractor run concurrently and their results are merged.
type Pipeline struct {
	pattern  *Extractor
	external *ExternalExtractor
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observe.Metrics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithExternal enables the external branch.
func WithExternal(x *ExternalExtractor) PipelineOption {
	return func(p *Pipeline) {
		p.external = x
	}
}

// WithExternalTimeout overrides the external extractor's own timeout.
func WithExternalTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPipelineMetrics records per-source value counts on m.
func WithPipelineMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline around pattern. A nil pattern extractor uses
// the default settings.
func NewPipeline(pattern *Extractor, opts ...PipelineOption) *Pipeline {
	if pattern == nil {
		pattern = NewExtractor()
	}
	p := &Pipeline{pattern: pattern, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pattern returns the pattern extractor.
func (p *Pipeline) Pattern() *Extractor {
	return p.pattern
}

// External returns the external extractor, which may be nil or not ready.
func (p *Pipeline) External() *ExternalExtractor {
	return p.external
}

// ExtractPattern runs only the pattern extractor.
func (p *Pipeline) ExtractPattern(text string) intel.Record {
	rec := p.pattern.Extract(text)
	p.metrics.Extracted("pattern", rec)
	return rec
}

// Extract runs both branches for text and returns the merged, cleansed
// record. The external branch is bounded by its timeout and contributes
// nothing when it fails.
func (p *Pipeline) Extract(ctx context.Context, text string, history []intel.Message) intel.Record {
	var (
		pattern  intel.Record
		external *intel.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pattern = p.ExtractPattern(text)
		return nil
	})
	if p.external.Ready() {
		g.Go(func() error {
			external = p.external.Extract(gctx, text, history, p.timeout)
			return nil
		})
	}
	// Neither branch returns an error.
	_ = g.Wait()

	merged := p.pattern.Merge(pattern, external)
	p.metrics.Extracted("merged", merged)
	p.logger.Debug("hybrid extraction complete",
		zap.Int("pattern_values", pattern.Len()),
		zap.Bool("external_used", external != nil),
		zap.Int("merged_values", merged.Len()))
	return merged
}
