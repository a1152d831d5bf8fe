// Package backfill attaches embeddings to stored messages that were written
// without one. It runs either as a full sweep over every unembedded row or
// as a worker for an explicit list of embed jobs.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/ragchat-go/internal/embedder"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/store"
)

// Config holds the settings for a Runner.
type Config struct {
	// BatchSize is the number of rows fetched per page. Defaults to 100.
	BatchSize int
}

// Result summarises a sweep.
type Result struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Runner embeds stored messages.
type Runner struct {
	embedder embedder.Embedder
	store    store.Store
	cfg      *Config
}

// NewRunner constructs a Runner from the provided dependencies and config.
func NewRunner(e embedder.Embedder, s store.Store, cfg *Config) (*Runner, error) {
	if e == nil {
		return nil, fmt.Errorf("backfill: embedder must not be nil")
	}
	if s == nil {
		return nil, fmt.Errorf("backfill: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Runner{embedder: e, store: s, cfg: cfg}, nil
}

// Run pages through every unembedded message, oldest first, normalizes and
// embeds its content, and attaches the vector. Pages advance by cursor, so a
// failing row is logged and counted once and never hides the rows after it.
// Run stops at the first short page.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	log := logging.FromContext(ctx)
	var res Result
	after := ""

	for {
		rows, err := r.store.ListUnembedded(ctx, after, r.cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("backfill: list unembedded: %w", err)
		}

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := r.embed(ctx, row.ID, embedder.Normalize(row.Content)); err != nil {
				res.Failed++
				log.Warn("backfill: failed to embed message", slog.String("id", row.ID), slog.Any("error", err))
				continue
			}
			res.Embedded++
		}

		if len(rows) < r.cfg.BatchSize {
			log.Info("backfill: sweep finished", slog.Int("embedded", res.Embedded), slog.Int("failed", res.Failed))
			return res, nil
		}
		after = rows[len(rows)-1].ID
	}
}

func (r *Runner) embed(ctx context.Context, id, text string) error {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	if err := r.store.AttachEmbedding(ctx, id, vec); err != nil {
		return fmt.Errorf("attach embedding: %w", err)
	}
	return nil
}

// ProcessJobs embeds the message named by each job in order. Once ctx is
// done the remaining jobs fail with the context error.
func (r *Runner) ProcessJobs(ctx context.Context, jobs []Job) ([]Job, []FailedJob) {
	log := logging.FromContext(ctx)
	completed := make([]Job, 0, len(jobs))
	failedJobs := make([]FailedJob, 0)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			failedJobs = append(failedJobs, FailedJob{Job: job, Error: err.Error()})
			continue
		}
		if err := r.processJob(ctx, job); err != nil {
			failedJobs = append(failedJobs, FailedJob{Job: job, Error: err.Error()})
			continue
		}
		completed = append(completed, job)
	}

	log.Info("backfill: finished processing jobs",
		slog.Int("completed_jobs", len(completed)),
		slog.Int("failed_jobs", len(failedJobs)),
	)
	return completed, failedJobs
}

func (r *Runner) processJob(ctx context.Context, job Job) error {
	row, err := r.store.Get(ctx, job.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("row not found: %s", job.ID)
	}
	if err != nil {
		return err
	}
	return r.embed(ctx, row.ID, row.Content)
}
