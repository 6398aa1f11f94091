package domain

// VariantAggregate is the raw per-variant aggregate read from storage.
type VariantAggregate struct {
	Variant         string   `gorm:"column:variant"`
	TotalUsers      int64    `gorm:"column:total_users"`
	Conversions     int64    `gorm:"column:conversions"`
	AvgEngagement   *float64 `gorm:"column:avg_engagement"`
	AvgTimeToAction *float64 `gorm:"column:avg_time_to_action"`
}

type VariantStats struct {
	Variant         string   `json:"variant"`
	TotalUsers      int      `json:"totalUsers"`
	Conversions     int      `json:"conversions"`
	ConversionRate  float64  `json:"conversionRate"`
	AvgEngagement   *float64 `json:"avgEngagement"`
	AvgTimeToAction *float64 `json:"avgTimeToAction"`
}

// Comparison is the outcome of one treatment-vs-control z-test.
type Comparison struct {
	Variant       string  `json:"variant"`
	VsControl     string  `json:"vsControl"`
	IsSignificant bool    `json:"isSignificant"`
	Confidence    float64 `json:"confidence"`
	PValue        float64 `json:"pValue"`
	Lift          float64 `json:"lift"`
	ZScore        float64 `json:"zScore"`
	Reason        string  `json:"reason"`
}

type SignificanceResult struct {
	IsSignificant     bool         `json:"isSignificant"`
	Confidence        float64      `json:"confidence"`
	HighestConfidence float64      `json:"highestConfidence"`
	Comparisons       []Comparison `json:"comparisons"`
	Winner            *string      `json:"winner"`
	Reason            string       `json:"reason,omitempty"`
}
