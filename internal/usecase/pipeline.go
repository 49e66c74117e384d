package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

// Timeouts bounds every blocking collaborator call. Zero disables the bound.
type Timeouts struct {
	Source   time.Duration
	Extract  time.Duration
	Classify time.Duration
	Persist  time.Duration
}

// PipelineDeps wires all driven adapters into the collection pipeline.
type PipelineDeps struct {
	Source     ports.MessageSource
	Extractor  ports.MetadataExtractor
	Classifier ports.Classifier
	Repository ports.RecipeRepository
	State      ports.RunStateStore
	Notifier   ports.Notifier
	Metrics    ports.Metrics
	Logger     *slog.Logger
	Timeouts   Timeouts
	Clock      func() time.Time
}

// Pipeline implements one incremental recipe collection run.
// It holds no locks; callers must not run two pipelines against the same
// run-state store at once (see ExclusiveRunner).
type Pipeline struct {
	source     ports.MessageSource
	extractor  ports.MetadataExtractor
	classifier ports.Classifier
	repository ports.RecipeRepository
	state      ports.RunStateStore
	notifier   ports.Notifier
	metrics    ports.Metrics
	logger     *slog.Logger
	timeouts   Timeouts
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		source:     deps.Source,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		repository: deps.Repository,
		state:      deps.State,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		timeouts:   deps.Timeouts,
		now:        clock,
	}
}

// Run loads the previous run state, processes every link posted since then and
// stores the new run state. Per-link failures are counted, not returned; only
// source and run-state errors abort the run.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	if err := p.validate(); err != nil {
		return domain.RunReport{}, err
	}

	startedAt := p.now()

	since, err := p.loadSince(ctx)
	if err != nil {
		return domain.RunReport{}, err
	}

	messages, err := p.fetch(ctx, since)
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("fetch messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Info("no new messages, run state left unchanged")
		report := domain.RunReport{StartedAt: startedAt, FinishedAt: p.now(), Empty: true}
		p.observeRun(report)
		return report, nil
	}

	p.logger.Info("messages fetched", "count", len(messages))

	state := domain.RunState{FailedLinks: []string{}}
	for i, msg := range messages {
		p.logger.Debug("process message", "index", i+1, "total", len(messages), "author", msg.Author, "links", len(msg.Links))
		for _, link := range msg.Links {
			if err := ctx.Err(); err != nil {
				return domain.RunReport{}, fmt.Errorf("run interrupted: %w", err)
			}

			outcome := p.processLink(ctx, msg, link)
			if err := state.Record(link, outcome); err != nil {
				p.logger.Error("unreachable link outcome", "link", link, "error", err)
			}
			p.observeOutcome(outcome)
		}
	}

	if err := ctx.Err(); err != nil {
		return domain.RunReport{}, fmt.Errorf("run interrupted: %w", err)
	}

	state.LastRunAt = &startedAt
	if err := p.state.Save(ctx, state); err != nil {
		return domain.RunReport{}, fmt.Errorf("save run state: %w", err)
	}

	report := domain.RunReport{State: state, StartedAt: startedAt, FinishedAt: p.now()}
	p.logSummary(report)
	p.observeRun(report)
	p.publish(ctx, report)

	return report, nil
}

func (p *Pipeline) validate() error {
	var missing []string
	if p.source == nil {
		missing = append(missing, "source")
	}
	if p.extractor == nil {
		missing = append(missing, "extractor")
	}
	if p.classifier == nil {
		missing = append(missing, "classifier")
	}
	if p.repository == nil {
		missing = append(missing, "repository")
	}
	if p.state == nil {
		missing = append(missing, "run state store")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline misconfigured, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// loadSince returns the lower bound for the source query; nil means full history.
func (p *Pipeline) loadSince(ctx context.Context) (*time.Time, error) {
	prev, err := p.state.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrRunStateCorrupt):
		p.logger.Warn("run state unreadable, collecting full history", "error", err)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load run state: %w", err)
	}

	if prev == nil || prev.LastRunAt == nil {
		p.logger.Info("first run, collecting full history")
		return nil, nil
	}

	since := *prev.LastRunAt
	p.logger.Info("incremental run", "since", since.Format(time.RFC3339))
	return &since, nil
}

func (p *Pipeline) fetch(ctx context.Context, since *time.Time) ([]domain.Message, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Source)
	defer cancel()
	return p.source.Fetch(ctx, since)
}

// processLink runs duplicate check, extraction, classification and persistence
// for one link. It never returns an error: every failure becomes OutcomeFailed.
func (p *Pipeline) processLink(ctx context.Context, msg domain.Message, link string) (outcome domain.Outcome) {
	log := p.logger.With("link", link)

	defer func() {
		if r := recover(); r != nil {
			log.Error("link failed", "stage", "panic", "error", r)
			outcome = domain.OutcomeFailed
		}
	}()

	exists, err := p.exists(ctx, link)
	switch {
	case err != nil:
		log.Warn("duplicate check failed, treating link as new", "error", err)
	case exists:
		log.Info("link skipped", "outcome", domain.OutcomeSkipped)
		return domain.OutcomeSkipped
	}

	meta, ok := p.scrape(ctx, link)
	meta.Title = strings.TrimSpace(meta.Title)
	if !ok || meta.Title == "" {
		log.Warn("link failed", "stage", "extract", "outcome", domain.OutcomeFailed)
		return domain.OutcomeFailed
	}

	cls := p.classify(ctx, domain.ClassifyInput{
		Title:       meta.Title,
		Description: meta.Description,
		Link:        link,
	})

	recipe := domain.NewRecipe(link, msg, meta, cls)
	if err := p.create(ctx, recipe); err != nil {
		log.Warn("link failed", "stage", "persist", "outcome", domain.OutcomeFailed, "error", err)
		return domain.OutcomeFailed
	}

	log.Info("link saved",
		"outcome", domain.OutcomeSuccess,
		"title", meta.Title,
		"cuisine", cls.CuisineType,
		"category", cls.Category)
	return domain.OutcomeSuccess
}

func (p *Pipeline) exists(ctx context.Context, link string) (bool, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Persist)
	defer cancel()
	return p.repository.Exists(ctx, link)
}

func (p *Pipeline) scrape(ctx context.Context, link string) (domain.ScrapedMetadata, bool) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Extract)
	defer cancel()
	return p.extractor.Scrape(ctx, link)
}

func (p *Pipeline) classify(ctx context.Context, in domain.ClassifyInput) domain.Classification {
	ctx, cancel := withTimeout(ctx, p.timeouts.Classify)
	defer cancel()
	return p.classifier.Classify(ctx, in)
}

func (p *Pipeline) create(ctx context.Context, recipe domain.Recipe) error {
	ctx, cancel := withTimeout(ctx, p.timeouts.Persist)
	defer cancel()
	return p.repository.Create(ctx, recipe)
}

func (p *Pipeline) logSummary(report domain.RunReport) {
	p.logger.Info("collection finished",
		"processed", report.State.ProcessedCount,
		"success", report.State.SuccessCount,
		"failed", report.State.FailedCount,
		"skipped", report.State.SkippedCount,
		"duration", report.Duration().String())
	for _, link := range report.State.FailedLinks {
		p.logger.Info("failed link", "link", link)
	}
}

func (p *Pipeline) publish(ctx context.Context, report domain.RunReport) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PublishSummary(ctx, report.Summary()); err != nil {
		p.logger.Warn("publish summary", "error", err)
	}
}

func (p *Pipeline) observeOutcome(outcome domain.Outcome) {
	if p.metrics != nil {
		p.metrics.ObserveOutcome(outcome)
	}
}

func (p *Pipeline) observeRun(report domain.RunReport) {
	if p.metrics != nil {
		p.metrics.ObserveRun(report)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
