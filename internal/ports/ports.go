package ports

import (
	"context"
	"time"

	"RecipeCollector/internal/domain"
)

// MessageSource pulls chat messages that contain links.
// A nil since requests the full history; otherwise only messages strictly after it.
type MessageSource interface {
	Fetch(ctx context.Context, since *time.Time) ([]domain.Message, error)
}

// MetadataExtractor fetches a page and reads its title, image and description.
// Any network or parse failure is reported as ok == false, never as a panic or error.
type MetadataExtractor interface {
	Scrape(ctx context.Context, link string) (meta domain.ScrapedMetadata, ok bool)
}

// Classifier tags a recipe. It always returns a value, falling back to
// domain.DefaultClassification when it cannot answer in time.
type Classifier interface {
	Classify(ctx context.Context, in domain.ClassifyInput) domain.Classification
}

// RecipeRepository is the insert-only datastore the pipeline writes to.
type RecipeRepository interface {
	Exists(ctx context.Context, link string) (bool, error)
	Create(ctx context.Context, recipe domain.Recipe) error
}

// RecipeReader serves stored recipes to the read API.
type RecipeReader interface {
	FindAll(ctx context.Context, filter domain.RecipeFilter) ([]domain.Recipe, error)
	FindByID(ctx context.Context, id string) (domain.Recipe, error)
	Count(ctx context.Context) (int, error)
}

// RunStateStore keeps the single run-state record between invocations.
type RunStateStore interface {
	Load(ctx context.Context) (*domain.RunState, error)
	Save(ctx context.Context, state domain.RunState) error
}

// Notifier publishes the end-of-run summary to operators.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// Metrics records pipeline activity.
type Metrics interface {
	ObserveOutcome(outcome domain.Outcome)
	ObserveRun(report domain.RunReport)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
