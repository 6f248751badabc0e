// Package policy implements the local classification rules: the blocked-app
// list and keyword matching for window titles, URLs and search queries.
//
// Precedence is fixed: an exact process-name match against the blocked-app
// list always wins, keyword matching is checked next, and the AI oracle is
// consulted only for free-text search queries after keywords miss.
package policy

import (
	"fmt"
	"strings"

	"flowengine/internal/domain"
)

// Ruleset holds the configured classification rules.
type Ruleset struct {
	blockedApps map[string]struct{}
	distracting []string
	productive  []string
}

// NewRuleset builds a ruleset from the configured lists. Matching is
// case-insensitive throughout.
func NewRuleset(blockedApps, distracting, productive []string) *Ruleset {
	blocked := make(map[string]struct{}, len(blockedApps))
	for _, app := range blockedApps {
		blocked[strings.ToLower(app)] = struct{}{}
	}
	return &Ruleset{
		blockedApps: blocked,
		distracting: lowerAll(distracting),
		productive:  lowerAll(productive),
	}
}

// IsBlockedApp reports whether the process name is on the explicit block
// list. This is an exact match, not a substring match.
func (r *Ruleset) IsBlockedApp(processName string) bool {
	_, ok := r.blockedApps[strings.ToLower(processName)]
	return ok
}

// ClassifyWindow labels a focused window. Blocked apps are checked before
// title keywords.
func (r *Ruleset) ClassifyWindow(processName, title string) domain.Classification {
	if r.IsBlockedApp(processName) {
		return domain.Classification{
			Verdict:    domain.VerdictDistracting,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("blocked application: %s", strings.ToLower(processName)),
			Source:     "blocklist",
		}
	}
	return r.classifyText(strings.ToLower(title))
}

// ClassifyURL labels a browser navigation by URL substring.
func (r *Ruleset) ClassifyURL(url string) domain.Classification {
	return r.classifyText(strings.ToLower(url))
}

// ClassifyQuery labels a search query by keyword. A neutral result here means
// the caller may fall back to the AI oracle.
func (r *Ruleset) ClassifyQuery(query string) domain.Classification {
	return r.classifyText(strings.ToLower(query))
}

// classifyText runs keyword matching. Distracting keywords are checked first:
// during a session a false negative is worse than a false positive, and the
// intervention still leaves the choice to the user.
func (r *Ruleset) classifyText(text string) domain.Classification {
	for _, k := range r.distracting {
		if strings.Contains(text, k) {
			return domain.Classification{
				Verdict:    domain.VerdictDistracting,
				Confidence: 0.8,
				Reasoning:  fmt.Sprintf("matched distracting keyword: %s", k),
				Source:     "keyword",
			}
		}
	}
	for _, k := range r.productive {
		if strings.Contains(text, k) {
			return domain.Classification{
				Verdict:    domain.VerdictProductive,
				Confidence: 0.7,
				Reasoning:  fmt.Sprintf("matched productive keyword: %s", k),
				Source:     "keyword",
			}
		}
	}
	return domain.Classification{
		Verdict:    domain.VerdictNeutral,
		Confidence: 0.5,
		Reasoning:  "no clear indicators",
		Source:     "keyword",
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
