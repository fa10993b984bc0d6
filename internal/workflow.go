package internal

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// MaxAuthorsPerWorkflow bounds a single harvest invocation per spec.md §4.8,
// split into sub-batches of authorsPerBatch to stay under the host's
// per-invocation subrequest ceiling.
const (
	MaxAuthorsPerWorkflow = 40
	authorsPerBatch       = 10
)

// AuthorHarvestSource supplies the ordered list of author names lacking a
// biography that a harvest workflow walks; in production this is a SQL
// query over enriched_authors, kept as an interface so tests can stub it.
type AuthorHarvestSource interface {
	AuthorsNeedingBio(ctx context.Context, offset, limit int) ([]string, error)
}

// AuthorHarvestWorkflow drives the self-rescheduling author-bio backfill
// described in spec.md §4.8: each invocation processes up to
// MaxAuthorsPerWorkflow authors in sub-batches of authorsPerBatch, then
// either completes or re-enqueues itself at next_offset; when quota runs
// out it stops as "partial" at next_offset without re-enqueuing.
type AuthorHarvestWorkflow struct {
	source    AuthorHarvestSource
	bios      *AuthorBioOrchestrator
	persister *Persister
	queue     *QueueClient
}

func NewAuthorHarvestWorkflow(source AuthorHarvestSource, bios *AuthorBioOrchestrator, persister *Persister, queue *QueueClient) *AuthorHarvestWorkflow {
	return &AuthorHarvestWorkflow{source: source, bios: bios, persister: persister, queue: queue}
}

// Run executes one workflow step starting at offset, persists its outcome,
// and self-reschedules via the harvest queue if more authors remain and
// quota allows. It returns the step it just completed.
func (w *AuthorHarvestWorkflow) Run(sc *ServiceContext, workflowID string, offset int) (WorkflowStep, error) {
	step := WorkflowStep{WorkflowID: workflowID, Offset: offset, Status: "running"}
	if err := w.persister.SaveWorkflowStep(sc.Context(), step); err != nil {
		return step, err
	}

	processed := 0
	for processed < MaxAuthorsPerWorkflow {
		batchLimit := authorsPerBatch
		if remaining := MaxAuthorsPerWorkflow - processed; remaining < batchLimit {
			batchLimit = remaining
		}
		names, err := w.source.AuthorsNeedingBio(sc.Context(), offset+processed, batchLimit)
		if err != nil {
			step.Status = "failed"
			step.Summary = Sanitize(err.Error())
			_ = w.persister.SaveWorkflowStep(sc.Context(), step)
			return step, err
		}
		if len(names) == 0 {
			step.Status = "done"
			step.Summary = fmt.Sprintf("processed %d authors, no more remaining", processed)
			return step, w.persister.SaveWorkflowStep(sc.Context(), step)
		}

		for _, name := range names {
			quotaExhausted := false
			if sc.Quota != nil {
				ok, _ := sc.Quota.CanMakeCalls(sc.Context(), 1)
				quotaExhausted = !ok
			}
			if quotaExhausted {
				next := offset + processed
				step.Status = "partial"
				step.NextOffset = &next
				step.Summary = fmt.Sprintf("quota exhausted after %d authors", processed)
				return step, w.persister.SaveWorkflowStep(sc.Context(), step)
			}
			w.bios.FetchBio(sc, name)
			processed++
		}
	}

	next := offset + processed
	step.Status = "partial"
	step.NextOffset = &next
	step.Summary = fmt.Sprintf("processed %d authors, continuing at offset %d", processed, next)
	if err := w.persister.SaveWorkflowStep(sc.Context(), step); err != nil {
		return step, err
	}
	return step, w.queue.EnqueueHarvestStep(sc.Context(), step)
}

// HarvestStepHandler adapts Run to an asynq.HandlerFunc for the harvest
// queue registered in NewQueueWorker.
func HarvestStepHandler(workflow *AuthorHarvestWorkflow, baseCtx func(ctx context.Context) *ServiceContext) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var step WorkflowStep
		if err := unmarshalTask(task, &step); err != nil {
			return SkipRetry(err)
		}
		offset := 0
		if step.NextOffset != nil {
			offset = *step.NextOffset
		}
		sc := baseCtx(ctx)
		_, err := workflow.Run(sc, step.WorkflowID, offset)
		return err
	}
}
