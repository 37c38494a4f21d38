// Package telemetry keeps in-process search statistics for /status. Nothing
// is persisted or reported elsewhere.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket maps a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one completed search.
type QueryEvent struct {
	Query       string
	Mode        string
	Category    string
	ResultCount int
	Degraded    bool
	Latency     time.Duration
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	Total        int64                   `json:"total"`
	ZeroResults  int64                   `json:"zero_results"`
	Degraded     int64                   `json:"degraded"`
	Modes        map[string]int64        `json:"modes"`
	Latency      map[LatencyBucket]int64 `json:"latency"`
	TopTerms     []TermCount             `json:"top_terms"`
	RecentMisses []string                `json:"recent_misses"`
	Since        time.Time               `json:"since"`
}

// Config bounds the memory the metrics hold.
type Config struct {
	TopTermsCapacity   int
	RecentMissCapacity int
	TopTermsReported   int
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:   200,
		RecentMissCapacity: 50,
		TopTermsReported:   10,
	}
}

// QueryMetrics aggregates search events. Safe for concurrent use.
type QueryMetrics struct {
	mu       sync.Mutex
	cfg      Config
	total    int64
	zero     int64
	degraded int64
	modes    map[string]int64
	latency  map[LatencyBucket]int64
	terms    *lru.Cache[string, int64]
	misses   *CircularBuffer[string]
	since    time.Time
}

// New creates empty metrics.
func New(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.RecentMissCapacity <= 0 {
		cfg.RecentMissCapacity = def.RecentMissCapacity
	}
	if cfg.TopTermsReported <= 0 {
		cfg.TopTermsReported = def.TopTermsReported
	}

	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	return &QueryMetrics{
		cfg:     cfg,
		modes:   make(map[string]int64),
		latency: make(map[LatencyBucket]int64),
		terms:   terms,
		misses:  NewCircularBuffer[string](cfg.RecentMissCapacity),
		since:   time.Now(),
	}
}

// Record adds one search. A nil receiver ignores the event.
func (m *QueryMetrics) Record(ev QueryEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.modes[ev.Mode]++
	m.latency[LatencyToBucket(ev.Latency)]++
	if ev.Degraded {
		m.degraded++
	}
	if ev.ResultCount == 0 {
		m.zero++
		m.misses.Add(ev.Query)
	}
	for _, term := range ExtractTerms(ev.Query) {
		n, _ := m.terms.Get(term)
		m.terms.Add(term, n+1)
	}
}

// Snapshot copies the current metrics.
func (m *QueryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Total:        m.total,
		ZeroResults:  m.zero,
		Degraded:     m.degraded,
		Modes:        make(map[string]int64, len(m.modes)),
		Latency:      make(map[LatencyBucket]int64, len(m.latency)),
		RecentMisses: m.misses.Items(),
		Since:        m.since,
	}
	for k, v := range m.modes {
		snap.Modes[k] = v
	}
	for k, v := range m.latency {
		snap.Latency[k] = v
	}

	for _, term := range m.terms.Keys() {
		if n, ok := m.terms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sort.Slice(snap.TopTerms, func(i, j int) bool {
		a, b := snap.TopTerms[i], snap.TopTerms[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Term < b.Term
	})
	if len(snap.TopTerms) > m.cfg.TopTermsReported {
		snap.TopTerms = snap.TopTerms[:m.cfg.TopTermsReported]
	}
	return snap
}

// ExtractTerms lowercases query and returns its words of three or more
// bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}
