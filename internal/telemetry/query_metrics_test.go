package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{time.Millisecond, BucketP10},
		{20 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{200 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.d))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"color", "theory"}, ExtractTerms("  Color of Theory "))
	assert.Nil(t, ExtractTerms("a an"))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: metrics and three searches
	m := New(Config{})
	m.Record(QueryEvent{Query: "color theory", Mode: "hybrid", ResultCount: 2, Latency: time.Millisecond})
	m.Record(QueryEvent{Query: "color wheel", Mode: "lexical", ResultCount: 0, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "color", Mode: "hybrid", ResultCount: 1, Degraded: true, Latency: time.Millisecond})

	// When: taking a snapshot
	snap := m.Snapshot()

	// Then: counts are aggregated
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, int64(1), snap.ZeroResults)
	assert.Equal(t, int64(1), snap.Degraded)
	assert.Equal(t, map[string]int64{"hybrid": 2, "lexical": 1}, snap.Modes)
	assert.Equal(t, int64(2), snap.Latency[BucketP10])
	assert.Equal(t, int64(1), snap.Latency[BucketP50])
	assert.Equal(t, []string{"color wheel"}, snap.RecentMisses)
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "color", Count: 3}, snap.TopTerms[0])
}

func TestQueryMetrics_TopTermsReported(t *testing.T) {
	m := New(Config{TopTermsReported: 2})
	m.Record(QueryEvent{Query: "alpha beta gamma", ResultCount: 1})
	m.Record(QueryEvent{Query: "gamma", ResultCount: 1})

	snap := m.Snapshot()

	assert.Equal(t, []TermCount{{"gamma", 2}, {"alpha", 1}}, snap.TopTerms)
}

func TestQueryMetrics_NilIgnored(t *testing.T) {
	var m *QueryMetrics
	assert.NotPanics(t, func() { m.Record(QueryEvent{Query: "x"}) })
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := New(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(QueryEvent{Query: "shared query", Mode: "lexical", ResultCount: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), m.Snapshot().Total)
}

func TestCircularBuffer(t *testing.T) {
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}
