package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubConfig controls the built-in mock services used for dry runs and
// tests. Mock and live services are selected at construction; shared logic
// never branches on a mode flag.
type StubConfig struct {
	// Trending maps platform name to the canned trend set. A missing
	// platform yields an empty set.
	Trending map[string][]TrendItem
	// RenderPolls is how many status polls a job stays pending before
	// completing. 0 completes on the first poll.
	RenderPolls int
	// Fail injects an error for the named operation: "trending", "detail",
	// "generate", "submit_render", "render_status", "publish".
	Fail map[string]error
	// GenerateDelay simulates generation latency.
	GenerateDelay time.Duration
}

// StubServices returns in-memory Services producing deterministic demo
// content. The render job lifecycle (pending for N polls, then completed)
// mimics the real render service's asynchronous completion.
func StubServices(cfg StubConfig) Services {
	s := &stubServices{
		cfg:  cfg,
		jobs: make(map[string]int),
	}
	return Services{
		FetchTrending:  s.fetchTrending,
		FetchDetail:    s.fetchDetail,
		GenerateScript: s.generateScript,
		SubmitRender:   s.submitRender,
		RenderStatus:   s.renderStatus,
		Publish:        s.publish,
	}
}

// DemoTrending returns a plausible trend set for demo runs.
func DemoTrending(platformName string) []TrendItem {
	base := time.Now().Add(-6 * time.Hour)
	return []TrendItem{
		{
			ID:          platformName + "-trend-1",
			Title:       "5 productivity hacks nobody told you",
			Author:      "creator_one",
			Metrics:     Metrics{Views: 2_400_000, Likes: 310_000, Comments: 12_000, Shares: 45_000},
			PublishedAt: base,
		},
		{
			ID:          platformName + "-trend-2",
			Title:       "This kitchen trick went viral",
			Author:      "creator_two",
			Metrics:     Metrics{Views: 1_100_000, Likes: 98_000, Comments: 4_300, Shares: 9_800},
			PublishedAt: base.Add(-2 * time.Hour),
		},
		{
			ID:          platformName + "-trend-3",
			Title:       "POV: your cat discovers the printer",
			Author:      "creator_three",
			Metrics:     Metrics{Views: 860_000, Likes: 150_000, Comments: 22_000, Shares: 31_000},
			PublishedAt: base.Add(-1 * time.Hour),
		},
	}
}

type stubServices struct {
	cfg     StubConfig
	mu      sync.Mutex
	jobs    map[string]int // jobID -> polls seen
	nextJob int
}

func (s *stubServices) fail(op string) error {
	if s.cfg.Fail == nil {
		return nil
	}
	return s.cfg.Fail[op]
}

func (s *stubServices) fetchTrending(ctx context.Context, platformName string, windowDays int) ([]TrendItem, error) {
	if err := s.fail("trending"); err != nil {
		return nil, err
	}
	if s.cfg.Trending != nil {
		return s.cfg.Trending[platformName], nil
	}
	return DemoTrending(platformName), nil
}

func (s *stubServices) fetchDetail(ctx context.Context, platformName, itemID string) (*TrendItem, error) {
	if err := s.fail("detail"); err != nil {
		return nil, err
	}
	for _, item := range DemoTrending(platformName) {
		if item.ID == itemID {
			return &item, nil
		}
	}
	items := s.cfg.Trending[platformName]
	for _, item := range items {
		if item.ID == itemID {
			return &item, nil
		}
	}
	return nil, fmt.Errorf("item %s not found", itemID)
}

func (s *stubServices) generateScript(ctx context.Context, item TrendItem, style string) (*ContentScript, error) {
	if err := s.fail("generate"); err != nil {
		return nil, err
	}
	if s.cfg.GenerateDelay > 0 {
		select {
		case <-time.After(s.cfg.GenerateDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &ContentScript{
		Title: "Trending Style: " + item.Title,
		Style: style,
		Scenes: []Scene{
			{Duration: 5 * time.Second, Voiceover: "Hook inspired by " + item.Title, VisualDescription: "fast cut opener"},
			{Duration: 40 * time.Second, Voiceover: "Original take on the trend", VisualDescription: "main sequence"},
			{Duration: 10 * time.Second, Voiceover: "Call to action", VisualDescription: "outro card"},
		},
	}, nil
}

func (s *stubServices) submitRender(ctx context.Context, script *ContentScript, cfg RenderConfig) (string, error) {
	if err := s.fail("submit_render"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJob++
	jobID := fmt.Sprintf("job-%d", s.nextJob)
	s.jobs[jobID] = 0
	return jobID, nil
}

func (s *stubServices) renderStatus(ctx context.Context, jobID string) (*RenderJob, error) {
	if err := s.fail("render_status"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	polls, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	s.jobs[jobID] = polls + 1
	if polls < s.cfg.RenderPolls {
		return &RenderJob{JobID: jobID, State: RenderPending}, nil
	}
	return &RenderJob{
		JobID:    jobID,
		State:    RenderCompleted,
		AssetURL: "https://render.local/assets/" + jobID + ".mp4",
	}, nil
}

func (s *stubServices) publish(ctx context.Context, platformName string, asset *RenderedAsset, meta Metadata) (*PublishReceipt, error) {
	if err := s.fail("publish"); err != nil {
		return nil, err
	}
	return &PublishReceipt{
		URL:         fmt.Sprintf("https://%s.example/watch/%s", platformName, asset.JobID),
		PublishedAt: time.Now().UTC(),
	}, nil
}
