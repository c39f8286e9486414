package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/scamintel/internal/config"
	"github.com/hurttlocker/scamintel/internal/conversation"
	"github.com/hurttlocker/scamintel/internal/extract"
	"github.com/hurttlocker/scamintel/internal/llm"
	"github.com/hurttlocker/scamintel/internal/observe"
	"github.com/hurttlocker/scamintel/internal/report"
	"github.com/hurttlocker/scamintel/internal/session"
)

// app is the wired engine shared by all commands.
type app struct {
	pipeline *extract.Pipeline
	sessions *session.Manager
	store    session.Store
	reporter *report.Reporter
	observe  *observe.Engine
	metrics  *observe.Metrics
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// newPipeline builds the extraction pipeline. An unusable LLM configuration
// is logged and the pipeline runs rules only.
func newPipeline(cfg config.ResolvedConfig, log *zap.Logger, metrics *observe.Metrics) (*extract.Pipeline, error) {
	policy, err := extract.ParseHandlePolicy(cfg.HandlePolicy.Value)
	if err != nil {
		return nil, fmt.Errorf("%w (from %s)", err, cfg.HandlePolicy.From)
	}
	pattern := extract.NewExtractor(
		extract.WithHandlePolicy(policy),
		extract.WithPaymentHandles(cfg.PaymentHandles...),
		extract.WithKeywords(cfg.Keywords...),
	)

	timeout, err := cfg.LLMTimeout.Duration(extract.DefaultExternalTimeout)
	if err != nil {
		return nil, err
	}
	window, err := cfg.HistoryWindow.Int(extract.DefaultHistoryWindow)
	if err != nil {
		return nil, err
	}
	cacheSize, err := cfg.LLMCacheSize.Int(0)
	if err != nil {
		return nil, err
	}

	opts := []extract.PipelineOption{
		extract.WithPipelineLogger(log),
		extract.WithPipelineMetrics(metrics),
		extract.WithExternalTimeout(timeout),
	}

	if cfg.LLMEnabled() {
		provider, err := newProvider(cfg)
		if err != nil {
			log.Warn("external extractor disabled", zap.String("llm", cfg.LLM.Value), zap.Error(err))
		} else {
			log.Info("external extractor enabled", zap.String("provider", provider.Name()), zap.Duration("timeout", timeout))
			opts = append(opts, extract.WithExternal(extract.NewExternalExtractor(provider,
				extract.WithTimeout(timeout),
				extract.WithHistoryWindow(window),
				extract.WithCacheSize(cacheSize),
				extract.WithLogger(log),
				extract.WithMetrics(metrics),
			)))
		}
	}
	return extract.NewPipeline(pattern, opts...), nil
}

func newProvider(cfg config.ResolvedConfig) (llm.Provider, error) {
	llmCfg, err := llm.ParseLLMFlag(cfg.LLM.Value)
	if err != nil {
		return nil, err
	}
	llmCfg.APIKey = cfg.APIKeyForProvider(llmCfg.Provider).Value
	llmCfg.BaseURL = cfg.LLMBaseURL.Value
	return llm.NewProvider(llmCfg)
}

func newStore(ctx context.Context, cfg config.ResolvedConfig, log *zap.Logger) (session.Store, error) {
	ttl, err := cfg.SessionTTL.Duration(session.DefaultTTL)
	if err != nil {
		return nil, err
	}
	switch backend := strings.ToLower(cfg.SessionStore.Value); backend {
	case "", "memory":
		return session.NewMemoryStore(ttl), nil
	case "redis":
		return session.NewRedisStore(ctx, session.RedisConfig{URL: cfg.RedisURL.Value, TTL: ttl, Logger: log})
	case "sqlite":
		return session.NewSQLiteStore(cfg.DBPath.Value, ttl)
	default:
		return nil, fmt.Errorf("unknown session store %q (supported: memory, redis, sqlite)", backend)
	}
}

// newApp wires pipeline, session store, manager and reporter from the
// resolved configuration.
func newApp(ctx context.Context, cfg config.ResolvedConfig, log *zap.Logger, metrics *observe.Metrics) (*app, error) {
	pipeline, err := newPipeline(cfg, log, metrics)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	sessions := session.NewManager(store,
		conversation.NewAggregator(pipeline, conversation.WithLogger(log)),
		session.WithManagerLogger(log),
		session.WithManagerMetrics(metrics),
	)
	a := &app{
		pipeline: pipeline,
		sessions: sessions,
		store:    store,
		observe:  observe.NewEngine(sessions, metrics),
		metrics:  metrics,
	}
	a.reporter = &report.Reporter{
		Sessions: sessions,
		Client: report.NewClient(report.ClientConfig{
			URL:     cfg.CallbackURL.Value,
			Headers: cfg.CallbackHeaders,
			Version: version,
			Logger:  log,
		}),
		Metrics: metrics,
		Now:     time.Now,
	}
	return a, nil
}
