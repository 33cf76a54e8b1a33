// Package risk classifies vitals readings against clinical threshold bands.
//
// Classify is deterministic and side-effect free: the same metric set always
// yields the same category and the same triggered-rule order. This is what
// makes replay and backfill safe.
package risk

import (
	"github.com/wisdom-muso/laso/internal/domain"
)

// band is one threshold rule for a metric. Bands for a metric are evaluated
// in order and the first match wins.
type band struct {
	name     string
	match    func(v float64) bool
	category domain.Category
}

// metricBands evaluates one metric's value against its ordered bands.
type metricBands struct {
	metric string
	bands  []band
}

func (mb metricBands) evaluate(v float64) (domain.Category, string) {
	for _, b := range mb.bands {
		if b.match(v) {
			return b.category, b.name
		}
	}
	return domain.CategoryNormal, ""
}

func ge(limit float64) func(float64) bool { return func(v float64) bool { return v >= limit } }
func le(limit float64) func(float64) bool { return func(v float64) bool { return v <= limit } }
func lt(limit float64) func(float64) bool { return func(v float64) bool { return v < limit } }
func gt(limit float64) func(float64) bool { return func(v float64) bool { return v > limit } }

// Threshold bands per metric, most severe first. Evaluation order across
// metrics is fixed (systolic, diastolic, heart rate, temperature, SpO2) so
// triggered_rules ordering is stable.
var (
	systolicBands = metricBands{metric: "systolic", bands: []band{
		{"systolic>=180", ge(180), domain.CategoryCritical},
		{"systolic<=90", le(90), domain.CategoryCritical},
		{"systolic>=140", ge(140), domain.CategoryElevated},
		{"systolic>=130", ge(130), domain.CategoryWatch},
	}}
	diastolicBands = metricBands{metric: "diastolic", bands: []band{
		{"diastolic>=120", ge(120), domain.CategoryCritical},
		{"diastolic>=90", ge(90), domain.CategoryElevated},
		{"diastolic<=60", le(60), domain.CategoryWatch},
	}}
	heartRateBands = metricBands{metric: "heart_rate", bands: []band{
		{"heart_rate>120", gt(120), domain.CategoryElevated},
		{"heart_rate<50", lt(50), domain.CategoryElevated},
		{"heart_rate>100", gt(100), domain.CategoryWatch},
		{"heart_rate<60", lt(60), domain.CategoryWatch},
	}}
	temperatureBands = metricBands{metric: "temperature", bands: []band{
		{"temperature<=35.0", le(35.0), domain.CategoryCritical},
		{"temperature>=39.0", ge(39.0), domain.CategoryElevated},
		{"temperature>=38.0", ge(38.0), domain.CategoryWatch},
	}}
	spo2Bands = metricBands{metric: "oxygen_saturation", bands: []band{
		{"oxygen_saturation<90", lt(90), domain.CategoryCritical},
		{"oxygen_saturation<94", lt(94), domain.CategoryElevated},
		{"oxygen_saturation<96", lt(96), domain.CategoryWatch},
	}}
)

// Classify evaluates every present metric and returns the overall assessment.
// The category is the maximum severity across metrics; triggered_rules lists
// every non-NORMAL breach in metric-evaluation order. A metric set with no
// values is UNKNOWN and never warrants an alert.
func Classify(metrics domain.MetricSet) domain.RiskAssessment {
	if metrics.Empty() {
		return domain.RiskAssessment{Category: domain.CategoryUnknown}
	}

	assessment := domain.RiskAssessment{Category: domain.CategoryNormal}

	evaluate := func(mb metricBands, value float64) {
		category, bandName := mb.evaluate(value)
		if category == domain.CategoryNormal {
			return
		}
		assessment.TriggeredRules = append(assessment.TriggeredRules, domain.Rule{
			Metric:   mb.metric,
			Band:     bandName,
			Value:    value,
			Category: category,
		})
		if category > assessment.Category {
			assessment.Category = category
		}
	}

	if metrics.Systolic != nil {
		evaluate(systolicBands, float64(*metrics.Systolic))
	}
	if metrics.Diastolic != nil {
		evaluate(diastolicBands, float64(*metrics.Diastolic))
	}
	if metrics.HeartRate != nil {
		evaluate(heartRateBands, float64(*metrics.HeartRate))
	}
	if metrics.Temperature != nil {
		evaluate(temperatureBands, *metrics.Temperature)
	}
	if metrics.SpO2 != nil {
		evaluate(spo2Bands, float64(*metrics.SpO2))
	}

	return assessment
}
