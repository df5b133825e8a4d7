// Package platform normalizes heterogeneous external services (trend
// sources, script generation, video rendering, publishing) into one
// capability interface over canonical domain types.
package platform

import (
	"time"
)

// Metrics holds engagement counters for a trend item.
type Metrics struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}

// TrendItem is one trending piece of content in canonical form, regardless
// of the source service's native schema.
type TrendItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Metrics     Metrics   `json:"metrics"`
	PublishedAt time.Time `json:"published_at"`
}

// EngagementRate is the ranking signal used for trend selection:
// interactions per view.
func (t TrendItem) EngagementRate() float64 {
	if t.Metrics.Views == 0 {
		return 0
	}
	interactions := t.Metrics.Likes + t.Metrics.Comments + t.Metrics.Shares
	return float64(interactions) / float64(t.Metrics.Views)
}

// Scene is one segment of a generated script.
type Scene struct {
	Duration          time.Duration `json:"duration"`
	Voiceover         string        `json:"voiceover"`
	VisualDescription string        `json:"visual_description"`
}

// ContentScript is a generated video script ready for rendering.
type ContentScript struct {
	Title  string  `json:"title"`
	Style  string  `json:"style"`
	Scenes []Scene `json:"scenes"`
}

// TotalDuration returns the summed scene durations.
func (s *ContentScript) TotalDuration() time.Duration {
	var total time.Duration
	for _, scene := range s.Scenes {
		total += scene.Duration
	}
	return total
}

// RenderConfig describes the output format a platform expects.
type RenderConfig struct {
	AspectRatio string        `json:"aspect_ratio"` // e.g. "9:16"
	MaxDuration time.Duration `json:"max_duration"`
	Resolution  string        `json:"resolution"` // e.g. "1080x1920"
	FPS         int           `json:"fps"`
}

// RenderState is the lifecycle state of a render job.
type RenderState string

const (
	// RenderPending means the job is queued or in progress.
	RenderPending RenderState = "pending"
	// RenderCompleted means the asset is ready.
	RenderCompleted RenderState = "completed"
	// RenderFailed means the job terminally failed.
	RenderFailed RenderState = "failed"
)

// RenderJob is a render service status response.
type RenderJob struct {
	JobID    string      `json:"job_id"`
	State    RenderState `json:"state"`
	AssetURL string      `json:"asset_url,omitempty"`
}

// RenderedAsset is a finished video asset.
type RenderedAsset struct {
	JobID string `json:"job_id"`
	URL   string `json:"url"`
}

// Metadata accompanies a publish call.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// PublishReceipt confirms a successful publication.
type PublishReceipt struct {
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}
