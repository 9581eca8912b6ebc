package classifier

import (
	"fmt"
	"strings"

	"github.com/kalambet/hypewatch/internal/evidence"
)

// acceptTerms filters the model's raw candidate terms: blank terms, the
// original keyword, denylisted generic terms, and duplicates are rejected
// (all case-insensitively). Fewer than min accepted terms is a failure;
// more than max are truncated in candidate order.
func acceptTerms(raw []string, keyword string, denylist []string, min, max int) ([]string, error) {
	denied := make(map[string]struct{}, len(denylist))
	for _, d := range denylist {
		denied[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	kw := strings.ToLower(keyword)

	var accepted []string
	seen := make(map[string]struct{})
	for _, t := range raw {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || key == kw {
			continue
		}
		if _, ok := denied[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		accepted = append(accepted, t)
	}

	if len(accepted) < min {
		return nil, fmt.Errorf("expansion produced %d usable terms, need at least %d", len(accepted), min)
	}
	if len(accepted) > max {
		accepted = accepted[:max]
	}
	return accepted, nil
}

// mergeOutcomes overlays the expansion round on the first round: a
// successful re-run replaces the first-round outcome for its source, while
// a failed or timed-out re-run leaves the first-round outcome in place.
// Sources not re-run pass through untouched.
func mergeOutcomes(first, second map[evidence.Source]evidence.Outcome) map[evidence.Source]evidence.Outcome {
	merged := make(map[evidence.Source]evidence.Outcome, len(first))
	for src, o := range first {
		merged[src] = o
	}
	for src, o := range second {
		if o.Status == evidence.StatusSuccess {
			merged[src] = o
		}
	}
	return merged
}
