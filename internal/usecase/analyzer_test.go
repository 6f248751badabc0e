package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowengine/internal/domain"
)

func TestAnalyzeAppPatterns(t *testing.T) {
	store := newMockStore()
	store.appUsage["steam.exe"] = &domain.AppPattern{AppName: "steam.exe", FlowBreaks: 7}
	store.appUsage["code.exe"] = &domain.AppPattern{AppName: "code.exe", ProductiveSessions: 10, DistractionSessions: 1}
	store.appUsage["slack.exe"] = &domain.AppPattern{AppName: "slack.exe", FlowBreaks: 2}

	a := NewAnalyzer(store, zapNop())
	analysis, err := a.AnalyzeAppPatterns()
	require.NoError(t, err)

	require.Len(t, analysis.FrequentDistractions, 1)
	assert.Equal(t, "steam.exe", analysis.FrequentDistractions[0].AppName)
	require.Len(t, analysis.ProductiveApps, 1)
	assert.Equal(t, "code.exe", analysis.ProductiveApps[0].AppName)

	require.Len(t, analysis.Recommendations, 1)
	assert.Equal(t, "auto_block", analysis.Recommendations[0].Action)
	assert.Equal(t, 70, analysis.Recommendations[0].Confidence)
}

func TestAnalyzeSkipsAlreadyBlocked(t *testing.T) {
	store := newMockStore()
	store.appUsage["steam.exe"] = &domain.AppPattern{AppName: "steam.exe", FlowBreaks: 9, AutoBlocked: true}

	a := NewAnalyzer(store, zapNop())
	analysis, err := a.AnalyzeAppPatterns()
	require.NoError(t, err)
	assert.Empty(t, analysis.FrequentDistractions)
}

func TestApplyAutoBlocking(t *testing.T) {
	store := newMockStore()
	store.appUsage["steam.exe"] = &domain.AppPattern{AppName: "steam.exe", FlowBreaks: 6}
	store.appUsage["code.exe"] = &domain.AppPattern{AppName: "code.exe", FlowBreaks: 0}

	a := NewAnalyzer(store, zapNop())
	blocked, err := a.ApplyAutoBlocking(0)
	require.NoError(t, err)

	assert.Equal(t, []string{"steam.exe"}, blocked)
	assert.True(t, store.appUsage["steam.exe"].AutoBlocked)
	assert.False(t, store.appUsage["code.exe"].AutoBlocked)
}

func TestBiologicalPatterns(t *testing.T) {
	store := newMockStore()
	store.peakHours = []int{9, 10}
	store.hourly = []domain.HourQuality{
		{Hour: 9, AvgQuality: 85, Sessions: 5},
		{Hour: 14, AvgQuality: 40, Sessions: 4},
		{Hour: 20, AvgQuality: 45, Sessions: 2}, // too few sessions to count
	}

	a := NewAnalyzer(store, zapNop())
	bio, err := a.BiologicalPatterns(30)
	require.NoError(t, err)

	assert.Equal(t, []int{9, 10}, bio.PeakHours)
	assert.Equal(t, []int{14}, bio.LowHours)
	require.Len(t, bio.Recommendations, 2)
	assert.Equal(t, "schedule_deep_work", bio.Recommendations[0].Action)
	assert.Equal(t, "schedule_breaks", bio.Recommendations[1].Action)
}

func seedSessions(store *mockStore, n int, focus float64, durationSeconds int) {
	now := time.Now()
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		store.closed[id] = domain.SessionRecord{
			ID:              id,
			StartTime:       now,
			EndTime:         &now,
			DurationSeconds: durationSeconds,
			FocusScore:      focus,
		}
	}
}

func TestOptimalThresholdNeedsHistory(t *testing.T) {
	store := newMockStore()
	seedSessions(store, 3, 90, 1800)

	a := NewAnalyzer(store, zapNop())
	minutes, err := a.OptimalThreshold(25)
	require.NoError(t, err)
	assert.Equal(t, 25, minutes)
}

func TestOptimalThresholdProgressiveOverload(t *testing.T) {
	store := newMockStore()
	seedSessions(store, 6, 90, 1800) // all successful, avg 30 min

	a := NewAnalyzer(store, zapNop())
	minutes, err := a.OptimalThreshold(25)
	require.NoError(t, err)
	assert.Equal(t, 33, minutes) // 30 * 110%
}

func TestOptimalThresholdAdaptiveReduction(t *testing.T) {
	store := newMockStore()
	seedSessions(store, 6, 30, 1800) // nobody over focus 70

	a := NewAnalyzer(store, zapNop())
	minutes, err := a.OptimalThreshold(25)
	require.NoError(t, err)
	assert.Equal(t, 22, minutes) // baseline 25 * 90%
}

func TestLearningSummary(t *testing.T) {
	store := newMockStore()
	store.appUsage["steam.exe"] = &domain.AppPattern{AppName: "steam.exe", FlowBreaks: 8}
	store.peakHours = []int{9}
	store.stats = domain.SessionStats{
		TotalSessions:     12,
		TotalSeconds:      18000,
		AvgFocusScore:     82,
		TotalDistractions: 7,
	}

	a := NewAnalyzer(store, zapNop())
	summary, err := a.LearningSummary()
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Stats.TotalSessions)
	assert.InDelta(t, 5, summary.Stats.TotalHours, 0.001)
	assert.Equal(t, []string{"steam.exe"}, summary.LearnedPatterns.ProblematicApps)
	assert.Equal(t, []int{9}, summary.LearnedPatterns.PeakFlowHours)
	assert.NotEmpty(t, summary.Recommendations)
}
