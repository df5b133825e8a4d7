// Package pipeline drives the per-platform content generation state machine:
// analyze trends, plan a target, generate a script, render, publish.
//
// Runs for different platforms execute concurrently and independently; one
// platform's failure or throttling never stalls another. The orchestrator
// itself never retries stages: request-level retries live in the scheduler,
// and a failed run can only be resumed by an explicit RestartFrom.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trendcast/cache"
	"trendcast/faults"
	"trendcast/platform"
)

// PlatformSpec is the orchestrator's per-platform configuration.
type PlatformSpec struct {
	// Name is the platform identifier, e.g. "youtube-shorts".
	Name string
	// Style steers script generation.
	Style string
	// Render is the output format the platform expects.
	Render platform.RenderConfig
	// Tags are attached to published content.
	Tags []string
}

// Config holds orchestrator configuration.
type Config struct {
	// WindowDays is the trend lookback window.
	WindowDays int
	// RunTimeout is the per-run deadline. 0 means no deadline.
	RunTimeout time.Duration
	// MinViews disqualifies trend items below this view count.
	MinViews int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WindowDays: 7,
		RunTimeout: 15 * time.Minute,
		MinViews:   1000,
	}
}

// Orchestrator fans pipeline runs out across platforms.
type Orchestrator struct {
	client    platform.Client
	artifacts *cache.Cache
	specs     map[string]PlatformSpec
	config    Config
	log       *slog.Logger
}

// New creates an orchestrator. The cache is consulted before any generation
// call; the client is the single gateway to external services.
func New(client platform.Client, artifacts *cache.Cache, specs []PlatformSpec, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultConfig().WindowDays
	}
	if log == nil {
		log = slog.Default()
	}
	byName := make(map[string]PlatformSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}
	return &Orchestrator{
		client:    client,
		artifacts: artifacts,
		specs:     byName,
		config:    cfg,
		log:       log,
	}
}

// Execute runs one pipeline per requested platform concurrently and returns
// all runs once every one of them has reached a terminal state. Exactly one
// run is returned per requested platform, in request order.
func (o *Orchestrator) Execute(ctx context.Context, platforms []string) []*Run {
	runs := make([]*Run, len(platforms))

	var wg sync.WaitGroup
	for i, name := range platforms {
		run := newRun(name)
		runs[i] = run

		wg.Add(1)
		go func(run *Run) {
			defer wg.Done()
			o.executeRun(ctx, run)
		}(run)
	}
	wg.Wait()

	return runs
}

// RestartFrom resumes a failed run from the given stage, reusing working
// state (fingerprint, planned trend, script) captured before the failure.
// It is the only sanctioned form of stage re-execution.
func (o *Orchestrator) RestartFrom(ctx context.Context, run *Run, stage Stage) error {
	if run.Stage != StageFailed {
		return fmt.Errorf("restart: run %s is %q, only failed runs restart", run.ID, run.Stage)
	}
	if _, ok := stageOrder[stage]; !ok {
		return fmt.Errorf("restart: %q is not a restartable stage", stage)
	}
	if stageOrder[stage] > stageOrder[run.stageReached] {
		return fmt.Errorf("restart: stage %q is past the failure point %q", stage, run.stageReached)
	}
	if stage != StageAnalyze && run.Fingerprint == "" {
		return fmt.Errorf("restart: run %s has no fingerprint, restart from %q", run.ID, StageAnalyze)
	}

	run.Status = StatusPending
	run.Stage = stage
	run.ErrKind = ""
	run.Err = nil
	run.FinishedAt = time.Time{}

	o.executeRun(ctx, run)
	return nil
}

// executeRun drives one run from its current stage to a terminal state
// under a run-scoped deadline. Cancelling this run's context never affects
// other runs or shared capacity state.
func (o *Orchestrator) executeRun(parent context.Context, run *Run) {
	ctx := parent
	if o.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, o.config.RunTimeout)
		defer cancel()
	}

	log := o.log.With(
		slog.String("run_id", run.ID),
		slog.String("platform", run.Platform))

	spec, ok := o.specs[run.Platform]
	if !ok {
		run.fail(faults.ValidationError, fmt.Errorf("platform %q is not configured", run.Platform))
		log.Warn("run rejected", slog.String("error", run.Err.Error()))
		return
	}

	for !run.Terminal() {
		if err := ctx.Err(); err != nil {
			run.fail(faults.Timeout, err)
			break
		}

		var err error
		switch run.Stage {
		case StageAnalyze:
			err = o.analyze(ctx, run)
		case StagePlan:
			err = o.plan(run)
		case StageGenerate:
			err = o.generate(ctx, run, spec)
		case StageRender:
			err = o.render(ctx, run, spec)
		case StagePublish:
			err = o.publish(ctx, run, spec)
		default:
			err = fmt.Errorf("unexpected stage %q", run.Stage)
		}

		if err != nil {
			run.fail(classify(run.Stage, err), err)
			log.Warn("run failed",
				slog.String("stage", string(run.stageReached)),
				slog.String("kind", string(run.ErrKind)),
				slog.String("error", err.Error()))
			return
		}
		if run.Terminal() {
			break
		}
	}

	if run.Status == StatusSucceeded {
		log.Info("run published", slog.String("artifact", run.ArtifactURL))
	} else if run.Status == StatusSkipped {
		log.Info("run skipped, no qualifying trend")
	}
}

// analyze fetches the trending set and computes the run fingerprint.
func (o *Orchestrator) analyze(ctx context.Context, run *Run) error {
	items, err := o.client.FetchTrending(ctx, run.Platform, o.config.WindowDays)
	if err != nil {
		return err
	}
	run.Fingerprint = Fingerprint(items)
	run.trendSet = items
	run.advance()
	return nil
}

// plan selects one trend item deterministically: engagement rate descending,
// ties broken by recency descending. No qualifying item skips the run.
func (o *Orchestrator) plan(run *Run) error {
	candidates := make([]platform.TrendItem, 0, len(run.trendSet))
	for _, item := range run.trendSet {
		if item.Metrics.Views >= o.config.MinViews {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		run.skip()
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].EngagementRate(), candidates[j].EngagementRate()
		if ri != rj {
			return ri > rj
		}
		return candidates[i].PublishedAt.After(candidates[j].PublishedAt)
	})

	run.trend = &candidates[0]
	run.advance()
	return nil
}

// generate obtains the content script, reusing the cached artifact for this
// fingerprint when one exists. Concurrent runs with the same fingerprint
// share a single generation call.
func (o *Orchestrator) generate(ctx context.Context, run *Run, spec PlatformSpec) error {
	value, err := o.artifacts.GetOrCompute(ctx, run.Fingerprint, "script", func(ctx context.Context) (any, error) {
		return o.client.GenerateScript(ctx, *run.trend, spec.Style)
	})
	if err != nil {
		return err
	}
	run.script = value.(*platform.ContentScript)
	run.advance()
	return nil
}

// render submits the script and awaits the finished asset.
func (o *Orchestrator) render(ctx context.Context, run *Run, spec PlatformSpec) error {
	jobID, err := o.client.SubmitRender(ctx, run.script, spec.Render)
	if err != nil {
		return err
	}
	run.jobID = jobID

	asset, err := o.client.AwaitRender(ctx, jobID)
	if err != nil {
		return err
	}
	run.asset = asset
	run.advance()
	return nil
}

// publish uploads the asset with metadata derived from the source trend.
func (o *Orchestrator) publish(ctx context.Context, run *Run, spec PlatformSpec) error {
	meta := platform.Metadata{
		Title:       "Trending Style: " + run.trend.Title,
		Description: fmt.Sprintf("Inspired by trending content from %s.", run.trend.Author),
		Tags:        spec.Tags,
	}
	receipt, err := o.client.Publish(ctx, run.Platform, run.asset, meta)
	if err != nil {
		return err
	}
	run.ArtifactURL = receipt.URL
	run.advance()
	return nil
}

// classify maps a stage error to its reported taxonomy kind. Errors already
// classified keep their kind; deadline expiry is a timeout; anything else
// defaults to the stage's fatal kind.
func classify(stage Stage, err error) faults.Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return faults.Timeout
	}
	if kind := faults.KindOf(err); kind != "" {
		return kind
	}
	switch stage {
	case StageRender:
		return faults.RenderError
	case StagePublish:
		return faults.PublishError
	default:
		return faults.TransientNetwork
	}
}
