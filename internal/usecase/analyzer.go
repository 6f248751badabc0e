package usecase

import (
	"fmt"

	"go.uber.org/zap"

	"flowengine/internal/domain"
)

// Analyzer mines the local store for learned patterns: apps that repeatedly
// break flow, biological flow windows, and the optimal flow threshold.
type Analyzer struct {
	store  domain.Store
	logger *zap.Logger
}

// NewAnalyzer creates a pattern analyzer over the local store.
func NewAnalyzer(store domain.Store, logger *zap.Logger) *Analyzer {
	return &Analyzer{store: store, logger: logger}
}

// Recommendation suggests a rule change based on observed patterns.
type Recommendation struct {
	AppName    string `json:"app_name,omitempty"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	Confidence int    `json:"confidence,omitempty"`
	Hours      []int  `json:"hours,omitempty"`
}

// AppAnalysis is the result of mining app usage patterns.
type AppAnalysis struct {
	FrequentDistractions []domain.AppPattern `json:"frequent_distractions"`
	ProductiveApps       []domain.AppPattern `json:"productive_apps"`
	Recommendations      []Recommendation    `json:"recommendations"`
}

// autoBlockThreshold is the flow-break count at which an app is considered a
// frequent distraction.
const autoBlockThreshold = 5

// AnalyzeAppPatterns identifies problematic and productive apps.
func (a *Analyzer) AnalyzeAppPatterns() (AppAnalysis, error) {
	patterns, err := a.store.AppPatterns(50)
	if err != nil {
		return AppAnalysis{}, fmt.Errorf("failed to load app patterns: %w", err)
	}

	analysis := AppAnalysis{
		FrequentDistractions: []domain.AppPattern{},
		ProductiveApps:       []domain.AppPattern{},
		Recommendations:      []Recommendation{},
	}

	for _, p := range patterns {
		if p.FlowBreaks >= autoBlockThreshold && !p.AutoBlocked {
			analysis.FrequentDistractions = append(analysis.FrequentDistractions, p)
			confidence := p.FlowBreaks * 10
			if confidence > 100 {
				confidence = 100
			}
			analysis.Recommendations = append(analysis.Recommendations, Recommendation{
				AppName:    p.AppName,
				Action:     "auto_block",
				Reason:     fmt.Sprintf("broke flow %d times", p.FlowBreaks),
				Confidence: confidence,
			})
		}
		if p.ProductiveSessions > p.DistractionSessions*2 {
			analysis.ProductiveApps = append(analysis.ProductiveApps, p)
		}
	}

	return analysis, nil
}

// ApplyAutoBlocking blocks apps that reached the flow-break threshold and
// returns the newly blocked names.
func (a *Analyzer) ApplyAutoBlocking(threshold int) ([]string, error) {
	if threshold <= 0 {
		threshold = autoBlockThreshold
	}
	names, err := a.store.FrequentDistractions(threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to load frequent distractions: %w", err)
	}
	blocked := make([]string, 0, len(names))
	for _, name := range names {
		if err := a.store.AutoBlockApp(name); err != nil {
			a.logger.Warn("failed to auto-block app", zap.String("app", name), zap.Error(err))
			continue
		}
		a.logger.Info("auto-blocked app", zap.String("app", name))
		blocked = append(blocked, name)
	}
	return blocked, nil
}

// BioPatterns captures time-of-day flow quality.
type BioPatterns struct {
	PeakHours       []int                `json:"peak_hours"`
	LowHours        []int                `json:"low_hours"`
	HourlyData      []domain.HourQuality `json:"hourly_data"`
	Recommendations []Recommendation     `json:"recommendations"`
}

// BiologicalPatterns identifies the hours of the day with the best and worst
// historical flow quality.
func (a *Analyzer) BiologicalPatterns(days int) (BioPatterns, error) {
	if days <= 0 {
		days = 30
	}
	peak, err := a.store.PeakFlowHours(days)
	if err != nil {
		return BioPatterns{}, fmt.Errorf("failed to load peak hours: %w", err)
	}
	hourly, err := a.store.HourlyQuality(days)
	if err != nil {
		return BioPatterns{}, fmt.Errorf("failed to load hourly quality: %w", err)
	}

	bio := BioPatterns{
		PeakHours:       peak,
		LowHours:        []int{},
		HourlyData:      hourly,
		Recommendations: []Recommendation{},
	}
	for _, h := range hourly {
		if h.AvgQuality < 50 && h.Sessions >= 3 {
			bio.LowHours = append(bio.LowHours, h.Hour)
		}
	}
	if len(peak) > 0 {
		bio.Recommendations = append(bio.Recommendations, Recommendation{
			Action: "schedule_deep_work",
			Hours:  peak,
			Reason: "historically high flow quality during these hours",
		})
	}
	if len(bio.LowHours) > 0 {
		bio.Recommendations = append(bio.Recommendations, Recommendation{
			Action: "schedule_breaks",
			Hours:  bio.LowHours,
			Reason: "historically low flow quality - consider breaks",
		})
	}
	return bio, nil
}

// OptimalThreshold computes the recommended flow-timer threshold in minutes
// using progressive overload: raise by 10% when the user succeeds more than
// 80% of the time, lower by 10% (never below 10 minutes) when the success
// rate falls under 40%.
func (a *Analyzer) OptimalThreshold(baselineMinutes int) (int, error) {
	if baselineMinutes <= 0 {
		baselineMinutes = FlowBaselineMinutes
	}
	sessions, err := a.store.ClosedSessionsSince(14, 20)
	if err != nil {
		return baselineMinutes, fmt.Errorf("failed to load recent sessions: %w", err)
	}
	if len(sessions) < 5 {
		return baselineMinutes, nil
	}

	var successful []domain.SessionRecord
	for _, s := range sessions {
		if s.FocusScore > 70 {
			successful = append(successful, s)
		}
	}
	successRate := float64(len(successful)) / float64(len(sessions))

	avgMinutes := baselineMinutes
	if len(successful) > 0 {
		total := 0
		for _, s := range successful {
			total += s.DurationSeconds
		}
		avgMinutes = total / len(successful) / 60
	}

	switch {
	case successRate > 0.8:
		next := avgMinutes * 110 / 100
		a.logger.Info("progressive overload",
			zap.Int("from_minutes", avgMinutes),
			zap.Int("to_minutes", next),
			zap.Float64("success_rate", successRate))
		return next, nil
	case successRate < 0.4:
		next := avgMinutes * 90 / 100
		if next < 10 {
			next = 10
		}
		a.logger.Info("adaptive reduction",
			zap.Int("from_minutes", avgMinutes),
			zap.Int("to_minutes", next),
			zap.Float64("success_rate", successRate))
		return next, nil
	default:
		return avgMinutes, nil
	}
}

// Summary is what the system has learned about the user.
type Summary struct {
	Stats struct {
		TotalSessions     int     `json:"total_sessions"`
		TotalHours        float64 `json:"total_hours"`
		AvgFocusScore     float64 `json:"avg_focus_score"`
		TotalDistractions int     `json:"total_distractions"`
	} `json:"stats"`
	LearnedPatterns struct {
		PeakFlowHours           []int    `json:"peak_flow_hours"`
		ProblematicApps         []string `json:"problematic_apps"`
		OptimalThresholdMinutes int      `json:"optimal_threshold_minutes"`
	} `json:"learned_patterns"`
	Recommendations []Recommendation `json:"recommendations"`
}

// LearningSummary aggregates the last 30 days into a single report.
func (a *Analyzer) LearningSummary() (Summary, error) {
	var summary Summary

	apps, err := a.AnalyzeAppPatterns()
	if err != nil {
		return summary, err
	}
	bio, err := a.BiologicalPatterns(30)
	if err != nil {
		return summary, err
	}
	threshold, err := a.OptimalThreshold(FlowBaselineMinutes)
	if err != nil {
		return summary, err
	}
	stats, err := a.store.SessionStats(30)
	if err != nil {
		return summary, fmt.Errorf("failed to load session stats: %w", err)
	}

	summary.Stats.TotalSessions = stats.TotalSessions
	summary.Stats.TotalHours = float64(stats.TotalSeconds) / 3600
	summary.Stats.AvgFocusScore = stats.AvgFocusScore
	summary.Stats.TotalDistractions = stats.TotalDistractions

	summary.LearnedPatterns.PeakFlowHours = bio.PeakHours
	summary.LearnedPatterns.OptimalThresholdMinutes = threshold
	summary.LearnedPatterns.ProblematicApps = make([]string, 0, len(apps.FrequentDistractions))
	for _, p := range apps.FrequentDistractions {
		summary.LearnedPatterns.ProblematicApps = append(summary.LearnedPatterns.ProblematicApps, p.AppName)
	}

	summary.Recommendations = append(apps.Recommendations, bio.Recommendations...)
	return summary, nil
}
