package experiment

import (
	"math/rand"

	"abExperiments/domain"
)

// RandomSource yields uniform draws in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// globalRand uses the package-level math/rand source, which is safe for
// concurrent use.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// VariantSelector picks variants with probability proportional to weight.
type VariantSelector struct {
	rnd RandomSource
}

func NewVariantSelector(rnd RandomSource) *VariantSelector {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &VariantSelector{rnd: rnd}
}

// Select draws one variant. It only reports false for an empty input;
// floating point drift falls back to the last variant.
func (s *VariantSelector) Select(variants []domain.Variant) (domain.Variant, bool) {
	if len(variants) == 0 {
		return domain.Variant{}, false
	}

	totalWeight := 0.0
	for _, v := range variants {
		totalWeight += v.EffectiveWeight()
	}

	r := s.rnd.Float64() * totalWeight
	for _, v := range variants {
		r -= v.EffectiveWeight()
		if r <= 0 {
			return v, true
		}
	}

	return variants[len(variants)-1], true
}
