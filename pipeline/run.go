package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"trendcast/faults"
	"trendcast/platform"
)

// Stage is one step of a platform's content pipeline.
type Stage string

const (
	// StageAnalyze fetches and fingerprints the trending set.
	StageAnalyze Stage = "analyze"
	// StagePlan selects the trend item to build content around.
	StagePlan Stage = "plan"
	// StageGenerate produces (or reuses) the content script.
	StageGenerate Stage = "generate"
	// StageRender submits the script and awaits the rendered asset.
	StageRender Stage = "render"
	// StagePublish uploads the asset.
	StagePublish Stage = "publish"
	// StageDone is the terminal success state.
	StageDone Stage = "done"
	// StageFailed is the absorbing failure state.
	StageFailed Stage = "failed"
	// StageSkipped is reached from plan when no trend qualifies.
	StageSkipped Stage = "skipped"
)

// Status is the coarse outcome of a run.
type Status string

const (
	// StatusPending means the run is still executing.
	StatusPending Status = "pending"
	// StatusSucceeded means the run published its asset.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the run terminated with an error.
	StatusFailed Status = "failed"
	// StatusSkipped means no qualifying trend existed.
	StatusSkipped Status = "skipped"
)

// nextStage is the forward transition table. Stages only advance; the one
// sanctioned exception is an explicit restart-from-stage.
var nextStage = map[Stage]Stage{
	StageAnalyze:  StagePlan,
	StagePlan:     StageGenerate,
	StageGenerate: StageRender,
	StageRender:   StagePublish,
	StagePublish:  StageDone,
}

// stageOrder positions stages for restart validation.
var stageOrder = map[Stage]int{
	StageAnalyze:  0,
	StagePlan:     1,
	StageGenerate: 2,
	StageRender:   3,
	StagePublish:  4,
}

// Run is one content-generation attempt for one platform. It is owned
// exclusively by the orchestrator and never mutated outside it.
type Run struct {
	ID          string
	Platform    string
	Stage       Stage
	Status      Status
	Fingerprint string
	ErrKind     faults.Kind
	Err         error
	ArtifactURL string
	StartedAt   time.Time
	FinishedAt  time.Time

	// Working state carried between stages; retained so an explicit
	// restart-from-stage can resume without re-running earlier stages.
	trendSet []platform.TrendItem
	trend    *platform.TrendItem
	script   *platform.ContentScript
	jobID    string
	asset    *platform.RenderedAsset

	// stageReached is the stage the run was executing when it terminated,
	// preserved across absorption into StageFailed.
	stageReached Stage
}

// newRun creates a pending run positioned at the analyze stage.
func newRun(platformName string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Platform:  platformName,
		Stage:     StageAnalyze,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
}

// advance moves the run to the next stage. It panics on an illegal
// transition: that is a programming error, not a runtime condition.
func (r *Run) advance() {
	next, ok := nextStage[r.Stage]
	if !ok {
		panic(fmt.Sprintf("pipeline: no forward transition from stage %q", r.Stage))
	}
	r.Stage = next
	if next == StageDone {
		r.Status = StatusSucceeded
		r.FinishedAt = time.Now().UTC()
	}
}

// fail absorbs the run into the failed state, recording the taxonomy kind
// and the stage it was in.
func (r *Run) fail(kind faults.Kind, err error) {
	r.stageReached = r.Stage
	r.Status = StatusFailed
	r.ErrKind = kind
	r.Err = err
	r.FinishedAt = time.Now().UTC()
	r.Stage = StageFailed
}

// skip marks the run skipped; only legal from the plan stage.
func (r *Run) skip() {
	if r.Stage != StagePlan {
		panic(fmt.Sprintf("pipeline: skip from stage %q", r.Stage))
	}
	r.Stage = StageSkipped
	r.Status = StatusSkipped
	r.FinishedAt = time.Now().UTC()
}

// Terminal reports whether the run reached a terminal state.
func (r *Run) Terminal() bool {
	switch r.Stage {
	case StageDone, StageFailed, StageSkipped:
		return true
	}
	return false
}

// StageReached returns the deepest pipeline stage the run was executing:
// for failed runs, the stage the failure occurred in; otherwise the current
// stage.
func (r *Run) StageReached() Stage {
	if r.Stage == StageFailed {
		return r.stageReached
	}
	return r.Stage
}
