package platform

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"trendcast/faults"
	"trendcast/scheduler"
)

// Client is the capability set the orchestrator depends on. Every method of
// the concrete implementation routes its call through the request scheduler;
// nothing here touches the network directly.
type Client interface {
	// FetchTrending lists trending items for a platform over a window.
	FetchTrending(ctx context.Context, platformName string, windowDays int) ([]TrendItem, error)
	// FetchDetail returns full metrics for one item.
	FetchDetail(ctx context.Context, platformName, itemID string) (*TrendItem, error)
	// GenerateScript produces a content script from a trend item in the
	// given platform style.
	GenerateScript(ctx context.Context, item TrendItem, style string) (*ContentScript, error)
	// SubmitRender submits a script for rendering and returns the job ID.
	SubmitRender(ctx context.Context, script *ContentScript, cfg RenderConfig) (string, error)
	// AwaitRender polls the render job until it completes, fails, or the
	// context is done.
	AwaitRender(ctx context.Context, jobID string) (*RenderedAsset, error)
	// Publish uploads the asset with metadata and returns the receipt.
	Publish(ctx context.Context, platformName string, asset *RenderedAsset, meta Metadata) (*PublishReceipt, error)
}

// Services are the raw collaborator endpoints the client wraps. The concrete
// functions are injected at construction: REST calls in live mode, canned
// data in mock mode. Implementations should return faults-classified errors;
// anything unclassified is treated as a transient network failure.
type Services struct {
	FetchTrending  func(ctx context.Context, platformName string, windowDays int) ([]TrendItem, error)
	FetchDetail    func(ctx context.Context, platformName, itemID string) (*TrendItem, error)
	GenerateScript func(ctx context.Context, item TrendItem, style string) (*ContentScript, error)
	SubmitRender   func(ctx context.Context, script *ContentScript, cfg RenderConfig) (string, error)
	RenderStatus   func(ctx context.Context, jobID string) (*RenderJob, error)
	Publish        func(ctx context.Context, platformName string, asset *RenderedAsset, meta Metadata) (*PublishReceipt, error)
}

// ResourceIDs maps client operations onto capacity-tracked resources.
type ResourceIDs struct {
	Trend      string
	Generation string
	Render     string
	Publish    string
}

// DefaultResourceIDs returns the conventional resource names.
func DefaultResourceIDs() ResourceIDs {
	return ResourceIDs{
		Trend:      "trend-api",
		Generation: "generation-api",
		Render:     "render-api",
		Publish:    "publish-api",
	}
}

// PollConfig bounds the render completion poll loop.
type PollConfig struct {
	// InitialInterval is the first poll delay.
	InitialInterval time.Duration
	// MaxInterval caps the poll delay growth.
	MaxInterval time.Duration
	// MaxElapsed bounds the whole poll loop; 0 leaves it to the context.
	MaxElapsed time.Duration
}

// DefaultPollConfig mirrors the render service's typical completion times.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 10 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsed:      10 * time.Minute,
	}
}

// serviceClient routes every service call through the scheduler.
type serviceClient struct {
	sched     *scheduler.Scheduler
	svc       Services
	resources ResourceIDs
	poll      PollConfig
}

// NewClient wraps the injected services in scheduler-routed admission.
func NewClient(sched *scheduler.Scheduler, svc Services, resources ResourceIDs, poll PollConfig) Client {
	if resources == (ResourceIDs{}) {
		resources = DefaultResourceIDs()
	}
	if poll == (PollConfig{}) {
		poll = DefaultPollConfig()
	}
	return &serviceClient{sched: sched, svc: svc, resources: resources, poll: poll}
}

// errRenderPending signals the poll loop to keep waiting.
var errRenderPending = errors.New("render job still pending")

func (c *serviceClient) FetchTrending(ctx context.Context, platformName string, windowDays int) ([]TrendItem, error) {
	result, err := c.sched.Submit(ctx, scheduler.Request{
		ResourceID: c.resources.Trend,
		Priority:   scheduler.PriorityNormal,
		Do: func(ctx context.Context) (any, error) {
			items, err := c.svc.FetchTrending(ctx, platformName, windowDays)
			return items, normalize(err)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.([]TrendItem), nil
}

func (c *serviceClient) FetchDetail(ctx context.Context, platformName, itemID string) (*TrendItem, error) {
	result, err := c.sched.Submit(ctx, scheduler.Request{
		ResourceID: c.resources.Trend,
		Priority:   scheduler.PriorityLow,
		Do: func(ctx context.Context) (any, error) {
			item, err := c.svc.FetchDetail(ctx, platformName, itemID)
			return item, normalize(err)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*TrendItem), nil
}

func (c *serviceClient) GenerateScript(ctx context.Context, item TrendItem, style string) (*ContentScript, error) {
	result, err := c.sched.Submit(ctx, scheduler.Request{
		ResourceID: c.resources.Generation,
		Priority:   scheduler.PriorityNormal,
		Do: func(ctx context.Context) (any, error) {
			script, err := c.svc.GenerateScript(ctx, item, style)
			return script, normalize(err)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*ContentScript), nil
}

func (c *serviceClient) SubmitRender(ctx context.Context, script *ContentScript, cfg RenderConfig) (string, error) {
	result, err := c.sched.Submit(ctx, scheduler.Request{
		ResourceID: c.resources.Render,
		Priority:   scheduler.PriorityHigh,
		Do: func(ctx context.Context) (any, error) {
			jobID, err := c.svc.SubmitRender(ctx, script, cfg)
			return jobID, normalize(err)
		},
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// AwaitRender polls the render status endpoint until the job reaches a
// terminal state. Each poll is a scheduled request; the delay between polls
// grows exponentially up to the configured cap.
func (c *serviceClient) AwaitRender(ctx context.Context, jobID string) (*RenderedAsset, error) {
	operation := func() (*RenderedAsset, error) {
		result, err := c.sched.Submit(ctx, scheduler.Request{
			ResourceID: c.resources.Render,
			Priority:   scheduler.PriorityLow,
			Do: func(ctx context.Context) (any, error) {
				job, err := c.svc.RenderStatus(ctx, jobID)
				return job, normalize(err)
			},
		})
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		job := result.(*RenderJob)
		switch job.State {
		case RenderCompleted:
			return &RenderedAsset{JobID: jobID, URL: job.AssetURL}, nil
		case RenderFailed:
			return nil, backoff.Permanent(faults.New(faults.RenderError, "render job %s failed", jobID))
		default:
			return nil, errRenderPending
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.poll.InitialInterval
	bo.MaxInterval = c.poll.MaxInterval

	opts := []backoff.RetryOption{backoff.WithBackOff(bo)}
	if c.poll.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.poll.MaxElapsed))
	}

	asset, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, faults.Wrap(faults.Timeout, err)
		}
		if errors.Is(err, errRenderPending) {
			return nil, faults.New(faults.RenderError, "render job %s did not complete in time", jobID)
		}
		return nil, err
	}
	return asset, nil
}

func (c *serviceClient) Publish(ctx context.Context, platformName string, asset *RenderedAsset, meta Metadata) (*PublishReceipt, error) {
	result, err := c.sched.Submit(ctx, scheduler.Request{
		ResourceID: c.resources.Publish,
		Priority:   scheduler.PriorityHigh,
		Do: func(ctx context.Context) (any, error) {
			receipt, err := c.svc.Publish(ctx, platformName, asset, meta)
			return receipt, normalize(err)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*PublishReceipt), nil
}

// normalize maps collaborator errors into the shared taxonomy before they
// reach the scheduler's retry classification. Already-classified errors pass
// through; context expiry becomes Timeout; everything else is assumed to be
// a transient network problem.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if faults.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return faults.Wrap(faults.Timeout, err)
	}
	return faults.Wrap(faults.TransientNetwork, err)
}
