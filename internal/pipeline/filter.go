package pipeline

import (
	"strings"

	"github.com/njmarshall/techstream/internal/fetch"
	"github.com/njmarshall/techstream/internal/model"
)

// Accept applies a source's filter rules to a candidate at the strategy's
// leniency tier. Returns the verdict plus a short reason for logging.
//
// Exclude keywords are absolute and never relaxed. Include keywords and
// the minimum-length threshold loosen at deeper tiers so older but valid
// content from historical strategies still gets through.
func Accept(cand model.Candidate, rules model.FilterRules, tier fetch.Tier) (bool, string) {
	text := strings.ToLower(cand.Title + " " + cand.Body)

	for _, kw := range rules.ExcludeKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return false, "excluded keyword: " + kw
		}
	}

	if len(rules.IncludeKeywords) > 0 && !matchesInclude(text, rules.IncludeKeywords, tier) {
		return false, "no include keyword matched"
	}

	if rules.MinLength > 0 {
		threshold := rules.MinLength / tier.Divisor()
		if len(cand.Title)+len(cand.Body) < threshold {
			return false, "below minimum length"
		}
	}

	return true, ""
}

// matchesInclude reports whether any include keyword matches. At lenient
// tiers, a match on any single word of a multi-word phrase is sufficient.
func matchesInclude(text string, keywords []string, tier fetch.Tier) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			return true
		}
		if tier == fetch.TierPrimary {
			continue
		}
		for _, word := range strings.Fields(kw) {
			if len(word) > 2 && strings.Contains(text, word) {
				return true
			}
		}
	}
	return false
}
