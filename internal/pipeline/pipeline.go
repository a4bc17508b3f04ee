package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/model"
)

// ErrStopped halts the pipeline when a session was stopped by the user.
var ErrStopped = errors.New("session stopped")

// State is shared by every step of one pipeline execution.
type State struct {
	// Seed is the URL the crawl starts from.
	Seed string

	// Crawl is the crawl result, set by CrawlStep.
	Crawl *crawler.Result

	// Sitemap is the manifest written by SitemapStep.
	Sitemap *model.Sitemap

	// Archives are the archives delivered by ExportStep.
	Archives []model.ArchiveInfo

	// PerformedSteps lists the steps that completed, in order.
	PerformedSteps []string
}

// Step is one phase of a session.
type Step interface {
	// Do runs the step. A returned error halts the pipeline.
	Do(ctx context.Context, state *State) error

	// Name returns the step's name for logging.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps      []Step
	logger     *slog.Logger
	beforeStep func(ctx context.Context, name string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithBeforeStep registers a hook run before each step. An error from
// the hook halts the pipeline without running the step.
func WithBeforeStep(hook func(ctx context.Context, name string) error) Option {
	return func(p *Pipeline) {
		p.beforeStep = hook
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:  make([]Step, 0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddSteps appends steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step in order and returns the first error.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "reason", err)
			return err
		}

		if p.beforeStep != nil {
			if err := p.beforeStep(ctx, step.Name()); err != nil {
				return err
			}
		}

		p.logger.Info("executing step", "step", step.Name(), "seed", state.Seed)
		if err := step.Do(ctx, state); err != nil {
			if errors.Is(err, ErrStopped) {
				p.logger.Info("pipeline stopped", "step", step.Name())
			} else {
				p.logger.Error("step failed", "step", step.Name(), "error", err)
			}
			return err
		}
		p.logger.Debug("step completed", "step", step.Name())

		state.PerformedSteps = append(state.PerformedSteps, step.Name())
	}
	return nil
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
