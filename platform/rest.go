package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trendcast/faults"
)

// Credentials are opaque bearer tokens, one per service. They are injected
// here and never inspected by the scheduler or orchestrator.
type Credentials struct {
	Trend      string
	Generation string
	Render     string
	Publish    string
}

// Endpoints are the base URLs of the live collaborator services.
type Endpoints struct {
	Trend      string
	Generation string
	Render     string
	Publish    string
}

// RESTServices builds live Services speaking JSON over HTTP against the
// configured endpoints. HTTP status codes are mapped into the error
// taxonomy: 401/403 are auth errors, 429 is a rate limit, other 4xx are
// validation errors, and 5xx plus transport failures are transient.
func RESTServices(endpoints Endpoints, creds Credentials, httpClient *http.Client) Services {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	r := &restServices{endpoints: endpoints, creds: creds, http: httpClient}
	return Services{
		FetchTrending:  r.fetchTrending,
		FetchDetail:    r.fetchDetail,
		GenerateScript: r.generateScript,
		SubmitRender:   r.submitRender,
		RenderStatus:   r.renderStatus,
		Publish:        r.publish,
	}
}

type restServices struct {
	endpoints Endpoints
	creds     Credentials
	http      *http.Client
}

func (r *restServices) fetchTrending(ctx context.Context, platformName string, windowDays int) ([]TrendItem, error) {
	url := fmt.Sprintf("%s/v1/trending?platform=%s&window_days=%d", r.endpoints.Trend, platformName, windowDays)
	var out struct {
		Items []TrendItem `json:"items"`
	}
	if err := r.call(ctx, http.MethodGet, url, r.creds.Trend, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (r *restServices) fetchDetail(ctx context.Context, platformName, itemID string) (*TrendItem, error) {
	url := fmt.Sprintf("%s/v1/items/%s?platform=%s", r.endpoints.Trend, itemID, platformName)
	var out TrendItem
	if err := r.call(ctx, http.MethodGet, url, r.creds.Trend, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *restServices) generateScript(ctx context.Context, item TrendItem, style string) (*ContentScript, error) {
	payload := map[string]any{"trend_item": item, "style": style}
	var out ContentScript
	if err := r.call(ctx, http.MethodPost, r.endpoints.Generation+"/v1/scripts", r.creds.Generation, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *restServices) submitRender(ctx context.Context, script *ContentScript, cfg RenderConfig) (string, error) {
	payload := map[string]any{
		"script":       script,
		"aspect_ratio": cfg.AspectRatio,
		"duration":     int(cfg.MaxDuration.Seconds()),
		"resolution":   cfg.Resolution,
		"fps":          cfg.FPS,
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := r.call(ctx, http.MethodPost, r.endpoints.Render+"/v1/videos", r.creds.Render, payload, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", faults.New(faults.ValidationError, "render service returned no job id")
	}
	return out.JobID, nil
}

func (r *restServices) renderStatus(ctx context.Context, jobID string) (*RenderJob, error) {
	var out RenderJob
	if err := r.call(ctx, http.MethodGet, r.endpoints.Render+"/v1/videos/"+jobID, r.creds.Render, nil, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		out.JobID = jobID
	}
	return &out, nil
}

func (r *restServices) publish(ctx context.Context, platformName string, asset *RenderedAsset, meta Metadata) (*PublishReceipt, error) {
	payload := map[string]any{
		"platform":  platformName,
		"asset_url": asset.URL,
		"metadata":  meta,
	}
	var out PublishReceipt
	if err := r.call(ctx, http.MethodPost, r.endpoints.Publish+"/v1/publish", r.creds.Publish, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs one JSON request/response cycle and classifies failures.
func (r *restServices) call(ctx context.Context, method, url, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return faults.Wrap(faults.ValidationError, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return faults.Wrap(faults.ValidationError, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return faults.Wrap(faults.TransientNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Wrap(faults.TransientNetwork, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// classifyStatus maps an HTTP status into the error taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return faults.New(faults.RateLimited, "status %d", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return faults.New(faults.AuthError, "status %d", status)
	case status >= 400 && status < 500:
		return faults.New(faults.ValidationError, "status %d", status)
	default:
		return faults.New(faults.TransientNetwork, "status %d", status)
	}
}
