package experiment

import (
	"fmt"

	"abExperiments/domain"
)

const minParticipants = 30

// Recommend turns results into operator guidance. Rules are checked in
// order and the first match wins.
func Recommend(stats []domain.VariantStats, sig domain.SignificanceResult) string {
	total := 0
	for _, v := range stats {
		total += v.TotalUsers
	}

	if total == 0 {
		return "No data available yet."
	}

	if total < minParticipants {
		return fmt.Sprintf(
			"Experiment needs more participants (%d/%d minimum). Continue collecting data.",
			total, minParticipants,
		)
	}

	if !sig.IsSignificant {
		return "No statistically significant winner yet. Consider: (1) Continue collecting data, " +
			"(2) The variants may perform similarly, (3) Try a larger effect size in future experiments."
	}

	if sig.Winner != nil {
		for _, c := range sig.Comparisons {
			if c.Variant != *sig.Winner {
				continue
			}
			return fmt.Sprintf(
				"Winner: %q outperforms %q by %.1f%% (%.1f%% confidence). Recommend implementing this variant.",
				c.Variant, c.VsControl, c.Lift, c.Confidence,
			)
		}
	}

	return "Results are inconclusive. Consider extending the experiment or revising the variants."
}
