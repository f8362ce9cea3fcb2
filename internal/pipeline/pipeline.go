// Package pipeline runs the crawl and enrichment stages. Execution is
// strictly sequential: one cell, one venue, one image at a time. The outer
// orchestrator is fail-fast between stages while each stage absorbs
// entity-level failures into its own accounting.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/internal/store"
)

// Run kinds recorded on pipeline_runs rows.
const (
	KindRun      = "run"
	KindAnnotate = "annotate"
	KindDescribe = "describe"
)

// Tracker is the crawl-progress ledger the fetch stage claims cells from.
type Tracker interface {
	ClaimNext(n int) ([]model.GridCell, error)
	Complete(cell model.GridCell, placesFound int) error
	Fail(cell model.GridCell, message string) error
}

// RemovalSink receives venues the gate flagged as out-of-domain. Flagged
// venues are recorded for human review; nothing deletes them.
type RemovalSink interface {
	Append(c model.RemovalCandidate) error
}

// Stages is the stage surface the orchestrator drives. Each stage derives
// its own work queue from persistent state, so any stage can be re-run
// standalone after an interrupted invocation.
type Stages interface {
	Fetch(ctx context.Context, cellLimit int) (model.CrawlStats, error)
	AnnotateMedia(ctx context.Context) (model.StageStats, error)
	DescribeVenues(ctx context.Context) (model.StageStats, error)
}

// Pipeline orchestrates stage execution and records each invocation as a
// durable pipeline_runs row.
type Pipeline struct {
	store  store.Store
	stages Stages
}

// New creates a Pipeline.
func New(st store.Store, stages Stages) *Pipeline {
	return &Pipeline{store: st, stages: stages}
}

// Run executes the stages selected by kind. KindRun executes
// Fetch → AnnotateMedia → DescribeVenues in order; a stage error aborts the
// remaining stages but never rolls back committed work. cellLimit bounds the
// fetch stage only; negative means all remaining cells.
func (p *Pipeline) Run(ctx context.Context, kind string, cellLimit int) (*model.PipelineRun, error) {
	run, err := p.store.CreateRun(ctx, kind)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("kind", kind))
	log.Info("pipeline: starting")

	report := &model.RunReport{}
	execErr := p.execute(ctx, kind, cellLimit, report)

	status := model.RunStatusComplete
	errMsg := ""
	if execErr != nil {
		status = model.RunStatusFailed
		errMsg = execErr.Error()
		log.Error("pipeline: failed", zap.Error(execErr))
	} else {
		log.Info("pipeline: complete",
			zap.Int("venues_created", report.Fetch.VenuesCreated),
			zap.Int("media_annotated", report.Annotate.Updated),
			zap.Int("venues_described", report.Describe.Updated),
		)
	}

	if err := p.store.CompleteRun(ctx, run.ID, status, report, errMsg); err != nil {
		// The run itself finished; losing the record is worth a log line,
		// not a second failure.
		log.Warn("pipeline: record run result", zap.Error(err))
	}

	run.Status = status
	run.Report = report
	run.Error = errMsg
	return run, execErr
}

func (p *Pipeline) execute(ctx context.Context, kind string, cellLimit int, report *model.RunReport) error {
	var err error
	switch kind {
	case KindAnnotate:
		report.Annotate, err = p.stages.AnnotateMedia(ctx)
		return err
	case KindDescribe:
		report.Describe, err = p.stages.DescribeVenues(ctx)
		return err
	default:
		if report.Fetch, err = p.stages.Fetch(ctx, cellLimit); err != nil {
			return err
		}
		if report.Annotate, err = p.stages.AnnotateMedia(ctx); err != nil {
			return err
		}
		report.Describe, err = p.stages.DescribeVenues(ctx)
		return err
	}
}
