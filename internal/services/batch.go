package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flash-quiz/internal/models"
)

// ProgressCallback is called while a batch runs to report progress.
type ProgressCallback func(step, message string, current, total int)

type RunRequest struct {
	SessionID string
	Task      models.Task
	Chunks    []string
	APIKey    string
	Progress  ProgressCallback
}

// BatchRunner drives chunks through the prompt templates and the completion
// service, one request at a time.
type BatchRunner struct {
	completer Completer
	pacer     Pacer
	admission Admitter
	log       zerolog.Logger
	now       func() time.Time
}

func NewBatchRunner(completer Completer, pacer Pacer, admission Admitter, log zerolog.Logger) *BatchRunner {
	if pacer == nil {
		pacer = NoDelay{}
	}
	if admission == nil {
		admission = UnlimitedAdmission{}
	}
	return &BatchRunner{
		completer: completer,
		pacer:     pacer,
		admission: admission,
		log:       log.With().Str("component", "batch").Logger(),
		now:       time.Now,
	}
}

// Run executes one batch. The returned run is never nil: on failure it holds
// the results completed before the first error, and the error wraps
// ErrQuotaExceeded, ErrRateLimited or ErrCompletionFailed.
func (r *BatchRunner) Run(ctx context.Context, req RunRequest) (*models.BatchRun, error) {
	run := &models.BatchRun{
		ID:        uuid.NewString(),
		Task:      req.Task,
		Status:    models.RunComplete,
		Results:   []models.GenerationResult{},
		StartedAt: r.now().UTC(),
	}
	log := r.log.With().Str("run", run.ID).Str("task", string(req.Task)).Int("chunks", len(req.Chunks)).Logger()

	if _, ok := models.ParseTask(string(req.Task)); !ok {
		return r.finish(run, models.RunFailed, fmt.Errorf("%w: %q", ErrUnknownTask, req.Task))
	}
	if len(req.Chunks) == 0 {
		log.Debug().Msg("nothing to generate")
		return r.finish(run, models.RunComplete, nil)
	}

	if err := r.admission.Admit(ctx, req.SessionID); err != nil {
		log.Info().Err(err).Msg("batch rejected by admission check")
		if !errors.Is(err, ErrQuotaExceeded) {
			err = fmt.Errorf("admission check: %w", err)
		}
		return r.finish(run, models.RunRejected, err)
	}

	log.Info().Msg("batch started")

	var err error
	if req.Task.PerChunk() {
		err = r.runPerChunk(ctx, req, run)
	} else {
		err = r.runGrouping(ctx, req, run)
	}
	if err != nil {
		status := models.RunFailed
		if errors.Is(err, ErrRateLimited) {
			status = models.RunRateLimited
		}
		log.Warn().Err(err).Int("completed", len(run.Results)).Msg("batch aborted")
		return r.finish(run, status, err)
	}

	log.Info().Int("calls", run.Calls).Msg("batch complete")
	return r.finish(run, models.RunComplete, nil)
}

func (r *BatchRunner) runPerChunk(ctx context.Context, req RunRequest, run *models.BatchRun) error {
	total := len(req.Chunks)
	for i, chunk := range req.Chunks {
		if i > 0 {
			if err := r.pacer.Wait(ctx); err != nil {
				return fmt.Errorf("wait before chunk %d: %w", i, err)
			}
		}

		report(req.Progress, "generate", fmt.Sprintf("Generating chunk %d of %d", i+1, total), i, total)

		prompt, err := BuildPrompt(req.Task, []string{chunk})
		if err != nil {
			return err
		}
		run.Calls++
		content, err := r.completer.Complete(ctx, req.APIKey, prompt)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, classifyCompletionError(err))
		}

		run.Results = append(run.Results, models.GenerationResult{
			Index:   i,
			Chunk:   chunk,
			Content: content,
		})
		report(req.Progress, "generate", fmt.Sprintf("Finished chunk %d of %d", i+1, total), i+1, total)
	}
	return nil
}

func (r *BatchRunner) runGrouping(ctx context.Context, req RunRequest, run *models.BatchRun) error {
	report(req.Progress, "generate", fmt.Sprintf("Grouping %d chunks", len(req.Chunks)), 0, 1)

	prompt, err := BuildPrompt(req.Task, req.Chunks)
	if err != nil {
		return err
	}
	run.Calls++
	content, err := r.completer.Complete(ctx, req.APIKey, prompt)
	if err != nil {
		return fmt.Errorf("grouping: %w", classifyCompletionError(err))
	}

	run.Results = append(run.Results, models.GenerationResult{
		Index:   0,
		Chunk:   strings.Join(req.Chunks, "\n\n"),
		Content: content,
	})
	report(req.Progress, "generate", "Grouping finished", 1, 1)
	return nil
}

func (r *BatchRunner) finish(run *models.BatchRun, status models.RunStatus, err error) (*models.BatchRun, error) {
	run.Status = status
	run.FinishedAt = r.now().UTC()
	if err != nil {
		run.Error = err.Error()
	}
	return run, err
}

func report(progress ProgressCallback, step, message string, current, total int) {
	if progress != nil {
		progress(step, message, current, total)
	}
}
