// Package report merges per-platform run outcomes into one report.
//
// Aggregation is total: it never fails, and the report always contains
// exactly one entry per requested platform. Malformed input becomes a
// recorded anomaly, not an error.
package report

import (
	"encoding/json"
	"time"

	"trendcast/pipeline"
)

// Entry is the outcome of one platform's run.
type Entry struct {
	Platform     string `json:"platform"`
	RunID        string `json:"run_id,omitempty"`
	Status       string `json:"status"`
	StageReached string `json:"stage_reached,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
	ArtifactURL  string `json:"artifact_url,omitempty"`
	Anomaly      string `json:"anomaly,omitempty"`

	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Report is the aggregated outcome of one run batch.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
}

// Aggregate builds the report for the requested platforms from the runs the
// orchestrator produced. Each requested platform yields exactly one entry;
// a missing, duplicate, or nil run is reported as an anomaly on the
// affected entry rather than raised.
func Aggregate(platforms []string, runs []*pipeline.Run) Report {
	byPlatform := make(map[string]*pipeline.Run, len(runs))
	duplicates := make(map[string]bool)
	for _, run := range runs {
		if run == nil {
			continue
		}
		if _, seen := byPlatform[run.Platform]; seen {
			duplicates[run.Platform] = true
			continue
		}
		byPlatform[run.Platform] = run
	}

	rep := Report{
		GeneratedAt: time.Now().UTC(),
		Entries:     make([]Entry, 0, len(platforms)),
	}

	for _, name := range platforms {
		run, ok := byPlatform[name]
		if !ok {
			rep.Entries = append(rep.Entries, Entry{
				Platform: name,
				Status:   string(pipeline.StatusFailed),
				Anomaly:  "no run produced for platform",
			})
			rep.Failed++
			continue
		}

		entry := Entry{
			Platform:     name,
			RunID:        run.ID,
			Status:       string(run.Status),
			StageReached: string(run.StageReached()),
			ArtifactURL:  run.ArtifactURL,
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
		}
		if run.Status == pipeline.StatusFailed {
			entry.ErrorKind = string(run.ErrKind)
			if run.Err != nil {
				entry.Error = run.Err.Error()
			}
		}
		if duplicates[name] {
			entry.Anomaly = "multiple runs produced for platform, first kept"
		}
		if run.Status == pipeline.StatusPending {
			entry.Anomaly = "run is not terminal"
		}

		switch run.Status {
		case pipeline.StatusSucceeded:
			rep.Succeeded++
		case pipeline.StatusSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}

		rep.Entries = append(rep.Entries, entry)
	}

	return rep
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
