package service

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	// slowReadThreshold marks a cached read as slow
	slowReadThreshold = 100 * time.Millisecond
	// maxReadSamples bounds the latency samples kept per kind
	maxReadSamples = 1000
)

// PerformanceMonitor tracks latency and hit rate of cache-backed reads
type PerformanceMonitor struct {
	mu          sync.RWMutex
	hitTimes    []time.Duration
	missTimes   []time.Duration
	cacheHits   int64
	cacheMisses int64
	slowReads   int64
	totalReads  int64
	maxSamples  int
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		hitTimes:   make([]time.Duration, 0, maxReadSamples),
		missTimes:  make([]time.Duration, 0, maxReadSamples),
		maxSamples: maxReadSamples,
	}
}

// RecordRead records one read and whether the cache served it
func (pm *PerformanceMonitor) RecordRead(duration time.Duration, hit bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.totalReads++

	if hit {
		pm.cacheHits++
		pm.hitTimes = appendSample(pm.hitTimes, duration, pm.maxSamples)
	} else {
		pm.cacheMisses++
		pm.missTimes = appendSample(pm.missTimes, duration, pm.maxSamples)
	}

	if duration > slowReadThreshold {
		pm.slowReads++
	}
}

func appendSample(samples []time.Duration, d time.Duration, limit int) []time.Duration {
	samples = append(samples, d)
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples
}

// GetStats returns current read statistics
func (pm *PerformanceMonitor) GetStats() *PerformanceStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := &PerformanceStats{
		TotalReads:  pm.totalReads,
		CacheHits:   pm.cacheHits,
		CacheMisses: pm.cacheMisses,
		SlowReads:   pm.slowReads,
	}

	if pm.totalReads > 0 {
		stats.CacheHitRate = float64(pm.cacheHits) / float64(pm.totalReads) * 100
	}
	stats.AvgHitMs = averageMs(pm.hitTimes)
	stats.AvgMissMs = averageMs(pm.missTimes)

	if len(pm.hitTimes) > 0 {
		sorted := make([]time.Duration, len(pm.hitTimes))
		copy(sorted, pm.hitTimes)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		p95Index := int(float64(len(sorted)) * 0.95)
		p99Index := int(float64(len(sorted)) * 0.99)

		if p95Index < len(sorted) {
			stats.P95HitMs = float64(sorted[p95Index].Milliseconds())
		}
		if p99Index < len(sorted) {
			stats.P99HitMs = float64(sorted[p99Index].Milliseconds())
		}
	}

	return stats
}

func averageMs(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return float64(total.Milliseconds()) / float64(len(samples))
}

// Reset clears all metrics
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.hitTimes = make([]time.Duration, 0, maxReadSamples)
	pm.missTimes = make([]time.Duration, 0, maxReadSamples)
	pm.cacheHits = 0
	pm.cacheMisses = 0
	pm.slowReads = 0
	pm.totalReads = 0
}

// CheckPerformance reports whether cached reads stay under the slow threshold
func (pm *PerformanceMonitor) CheckPerformance() *PerformanceCheck {
	stats := pm.GetStats()

	check := &PerformanceCheck{
		Passed: true,
		Issues: make([]string, 0),
	}

	limitMs := float64(slowReadThreshold.Milliseconds())
	if stats.AvgHitMs > limitMs {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("Average cached read time (%.2fms) exceeds %.0fms threshold", stats.AvgHitMs, limitMs))
	}
	if stats.P95HitMs > limitMs {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("P95 cached read time (%.2fms) exceeds %.0fms threshold", stats.P95HitMs, limitMs))
	}

	// A low hit rate is reported but does not fail the check
	if stats.CacheHitRate < 50 && stats.TotalReads > 100 {
		check.Issues = append(check.Issues,
			fmt.Sprintf("Cache hit rate (%.2f%%) is below 50%% - consider a longer CACHE_TTL", stats.CacheHitRate))
	}

	return check
}

// PerformanceStats contains read statistics
type PerformanceStats struct {
	TotalReads   int64   `json:"totalReads"`
	CacheHits    int64   `json:"cacheHits"`
	CacheMisses  int64   `json:"cacheMisses"`
	SlowReads    int64   `json:"slowReads"`
	CacheHitRate float64 `json:"cacheHitRate"` // Percentage
	AvgHitMs     float64 `json:"avgHitMs"`
	AvgMissMs    float64 `json:"avgMissMs"`
	P95HitMs     float64 `json:"p95HitMs"`
	P99HitMs     float64 `json:"p99HitMs"`
}

// PerformanceCheck contains performance check results
type PerformanceCheck struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}
