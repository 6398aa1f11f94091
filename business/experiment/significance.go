package experiment

import (
	"math"

	"abExperiments/domain"
)

const (
	significanceLevel = 0.05
	maxConfidence     = 99.9
)

const (
	reasonTooFewVariants    = "Need at least 2 variants"
	reasonInsufficientUsers = "Insufficient sample size"
	reasonNoVariation       = "No variation in data"
	reasonSignificant       = "Statistically significant at 95% confidence level"
	reasonNotSignificant    = "Not significant (need more data or larger effect)"
)

// ComputeSignificance runs a two-proportion z-test of every treatment
// (index >= 1) against the control (index 0). It is total: degenerate input
// yields a non-significant result instead of an error.
func ComputeSignificance(stats []domain.VariantStats) domain.SignificanceResult {
	if len(stats) < 2 {
		return domain.SignificanceResult{
			IsSignificant: false,
			Confidence:    0,
			Comparisons:   []domain.Comparison{},
			Reason:        reasonTooFewVariants,
		}
	}

	control := stats[0]
	comparisons := make([]domain.Comparison, 0, len(stats)-1)

	for _, treatment := range stats[1:] {
		comparisons = append(comparisons, compareToControl(control, treatment))
	}

	result := domain.SignificanceResult{Comparisons: comparisons}

	var winner *domain.Comparison
	for i := range comparisons {
		c := &comparisons[i]
		if c.IsSignificant {
			result.IsSignificant = true
		}
		if c.Confidence > result.HighestConfidence {
			result.HighestConfidence = c.Confidence
		}
		if c.IsSignificant && c.Lift > 0 && (winner == nil || c.Lift > winner.Lift) {
			winner = c
		}
	}
	result.Confidence = result.HighestConfidence

	if winner != nil {
		name := winner.Variant
		result.Winner = &name
	}

	return result
}

func compareToControl(control, treatment domain.VariantStats) domain.Comparison {
	out := domain.Comparison{
		Variant:   treatment.Variant,
		VsControl: control.Variant,
		PValue:    1,
	}

	n1 := float64(control.TotalUsers)
	n2 := float64(treatment.TotalUsers)

	if n1 == 0 || n2 == 0 {
		out.Reason = reasonInsufficientUsers
		return out
	}

	p1 := float64(control.Conversions) / n1
	p2 := float64(treatment.Conversions) / n2

	pooledP := float64(control.Conversions+treatment.Conversions) / (n1 + n2)
	se := math.Sqrt(pooledP * (1 - pooledP) * (1/n1 + 1/n2))

	// NaN only shows up when conversions exceed users
	if se == 0 || math.IsNaN(se) {
		out.Reason = reasonNoVariation
		return out
	}

	z := (p2 - p1) / se
	pValue := 2 * (1 - normalCDF(math.Abs(z)))

	lift := 0.0
	if p1 > 0 {
		lift = (p2 - p1) / p1 * 100
	}

	out.IsSignificant = pValue < significanceLevel
	out.Confidence = round(math.Min(maxConfidence, (1-pValue)*100), 1)
	out.PValue = round(pValue, 4)
	out.Lift = round(lift, 1)
	out.ZScore = round(z, 2)

	if out.IsSignificant {
		out.Reason = reasonSignificant
	} else {
		out.Reason = reasonNotSignificant
	}

	return out
}

// normalCDF is the Abramowitz-Stegun 7.1.26 approximation of the standard
// normal CDF.
func normalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

func round(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}
