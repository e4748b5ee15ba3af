package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/document-classifier/internal/config"
	"github.com/kirillkom/document-classifier/internal/core/ports"
	"github.com/kirillkom/document-classifier/internal/core/usecase"
	"github.com/kirillkom/document-classifier/internal/infrastructure/extractor/multiformat"
	"github.com/kirillkom/document-classifier/internal/infrastructure/llm/labels"
	"github.com/kirillkom/document-classifier/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/document-classifier/internal/infrastructure/llm/openai"
	"github.com/kirillkom/document-classifier/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-classifier/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-classifier/internal/infrastructure/resilience"
	"github.com/kirillkom/document-classifier/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-classifier/internal/infrastructure/zeroshot/huggingface"
	"github.com/kirillkom/document-classifier/internal/observability/metrics"
)

type Options struct {
	// Metrics observes pipeline stages and breaker states when set.
	Metrics *metrics.HTTPServerMetrics
	// Publish announces classifications on NATS when NATS_URL is configured.
	Publish bool
}

type App struct {
	Config     config.Config
	Classifier *usecase.ClassifyDocumentUseCase

	closeFn func()
}

func New(_ context.Context, cfg config.Config, options Options) (*App, error) {
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var executorOpts []resilience.Option
	if options.Metrics != nil {
		executorOpts = append(executorOpts, resilience.WithStateObserver(options.Metrics.ObserveBreakerState))
	}
	base := ResilienceConfig(cfg)

	completer, err := newCompleter(cfg)
	if err != nil {
		return nil, err
	}
	generator := labels.NewGenerator(
		completer,
		resilience.NewExecutor(resilience.GenerationPolicy(base), executorOpts...),
		labels.Options{
			MaxTokens:   cfg.GenMaxTokens,
			Temperature: float32(cfg.GenTemperature),
			MaxChars:    cfg.MaxTextChars,
		},
	)
	scorer := huggingface.NewScorer(
		huggingface.Config{
			BaseURL:  cfg.ZeroShotURL,
			Model:    cfg.ZeroShotModel,
			Token:    cfg.HFToken,
			Timeout:  time.Duration(cfg.ZeroShotTimeoutSeconds) * time.Second,
			MaxChars: cfg.ScorerMaxChars,
		},
		resilience.NewExecutor(resilience.ScoringPolicy(base), executorOpts...),
	)
	extractor := multiformat.NewExtractor(cfg.MaxTextChars)

	ucOpts := []usecase.ClassifyOption{usecase.WithPreviewChars(cfg.PreviewChars)}
	if options.Metrics != nil {
		ucOpts = append(ucOpts, usecase.WithObserver(options.Metrics))
	}

	closeFn := func() {}
	if options.Publish && cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(base, executorOpts...),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		ucOpts = append(ucOpts, usecase.WithPublisher(queue))
		closeFn = queue.Close
	}

	return &App{
		Config:     cfg,
		Classifier: usecase.NewClassifyDocumentUseCase(storage, extractor, generator, scorer, ucOpts...),
		closeFn:    closeFn,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker consumes classification events and writes them to the journal.
type Worker struct {
	Config  config.Config
	Events  ports.ClassificationSubscriber
	Journal ports.ClassificationRecorder

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("NATS_URL is required for the journal worker")
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	journal := postgres.NewJournalRepository(db)
	if err := journal.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Events:  queue,
		Journal: journal,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func ResilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryInitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
	out.RetryMultiplier = cfg.RetryMultiplier
	out.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second
	if cfg.BreakerHalfOpenMaxCalls > 0 {
		out.BreakerHalfOpenMaxCalls = uint32(cfg.BreakerHalfOpenMaxCalls)
	}
	return out
}

func newCompleter(cfg config.Config) (ports.ChatCompleter, error) {
	timeout := time.Duration(cfg.GenTimeoutSeconds) * time.Second
	switch cfg.LLMProvider {
	case "", "openai":
		return openai.NewCompleter(openai.Config{
			APIKey:  cfg.HFToken,
			BaseURL: cfg.HFBaseURL,
			Model:   cfg.GenModel,
			Timeout: timeout,
		}), nil
	case "ollama":
		return ollama.NewCompleter(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, timeout)), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
