package classifier

import "github.com/kalambet/hypewatch/internal/evidence"

// isNiche reports whether the primary-signal evidence indicates a sparse
// keyword that would benefit from query expansion. Either floor alone
// triggers. Missing evidence means the check is skipped, not that the
// keyword is niche: without the primary signal there is nothing to judge
// sparseness against.
func isNiche(ev *evidence.Evidence, floor30d, floorTotal float64) bool {
	if ev == nil {
		return false
	}
	return ev.Metrics["mentions_30d"] < floor30d || ev.Metrics["mentions_total"] < floorTotal
}
