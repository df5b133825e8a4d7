package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trendcast/platform"
)

func fingerprintItems() []platform.TrendItem {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return []platform.TrendItem{
		{
			ID:          "trend-1",
			Metrics:     platform.Metrics{Views: 1000, Likes: 100, Comments: 10, Shares: 5},
			PublishedAt: base,
		},
		{
			ID:          "trend-2",
			Metrics:     platform.Metrics{Views: 2000, Likes: 50, Comments: 3, Shares: 1},
			PublishedAt: base.Add(-time.Hour),
		},
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(fingerprintItems())
	b := Fingerprint(fingerprintItems())

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	items := fingerprintItems()
	reversed := []platform.TrendItem{items[1], items[0]}

	assert.Equal(t, Fingerprint(items), Fingerprint(reversed))
}

func TestFingerprint_SensitiveToMetrics(t *testing.T) {
	items := fingerprintItems()
	changed := fingerprintItems()
	changed[0].Metrics.Views++

	assert.NotEqual(t, Fingerprint(items), Fingerprint(changed))
}

func TestFingerprint_TimezoneNormalized(t *testing.T) {
	items := fingerprintItems()
	shifted := fingerprintItems()
	shifted[0].PublishedAt = shifted[0].PublishedAt.In(time.FixedZone("PST", -8*3600))

	assert.Equal(t, Fingerprint(items), Fingerprint(shifted))
}

func TestFingerprint_EmptySet(t *testing.T) {
	assert.Equal(t, Fingerprint(nil), Fingerprint([]platform.TrendItem{}))
}
