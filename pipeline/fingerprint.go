package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"trendcast/platform"
)

// Fingerprint computes a deterministic hash of a normalized trend set. Two
// analyses observing the same trends (in any order) produce the same
// fingerprint, which keys the content cache.
func Fingerprint(items []platform.TrendItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s|%d|%d|%d|%d|%d",
			item.ID,
			item.Metrics.Views,
			item.Metrics.Likes,
			item.Metrics.Comments,
			item.Metrics.Shares,
			item.PublishedAt.UTC().Unix(),
		))
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
