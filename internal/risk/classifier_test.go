package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisdom-muso/laso/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestClassify_EmptyMetricSetIsUnknown(t *testing.T) {
	assessment := Classify(domain.MetricSet{})

	assert.Equal(t, domain.CategoryUnknown, assessment.Category)
	assert.Empty(t, assessment.TriggeredRules)
	assert.False(t, assessment.Category.AtLeast(domain.CategoryElevated))
}

func TestClassify_SingleMetricBands(t *testing.T) {
	tests := []struct {
		name     string
		metrics  domain.MetricSet
		expected domain.Category
	}{
		{"normal systolic", domain.MetricSet{Systolic: intPtr(120)}, domain.CategoryNormal},
		{"watch systolic", domain.MetricSet{Systolic: intPtr(132)}, domain.CategoryWatch},
		{"elevated systolic", domain.MetricSet{Systolic: intPtr(150)}, domain.CategoryElevated},
		{"critical high systolic", domain.MetricSet{Systolic: intPtr(185)}, domain.CategoryCritical},
		{"critical low systolic", domain.MetricSet{Systolic: intPtr(88)}, domain.CategoryCritical},
		{"critical diastolic", domain.MetricSet{Diastolic: intPtr(125)}, domain.CategoryCritical},
		{"elevated diastolic", domain.MetricSet{Diastolic: intPtr(95)}, domain.CategoryElevated},
		{"low diastolic watch", domain.MetricSet{Diastolic: intPtr(55)}, domain.CategoryWatch},
		{"normal heart rate", domain.MetricSet{HeartRate: intPtr(75)}, domain.CategoryNormal},
		{"tachycardia", domain.MetricSet{HeartRate: intPtr(130)}, domain.CategoryElevated},
		{"bradycardia", domain.MetricSet{HeartRate: intPtr(45)}, domain.CategoryElevated},
		{"mild tachycardia", domain.MetricSet{HeartRate: intPtr(110)}, domain.CategoryWatch},
		{"fever", domain.MetricSet{Temperature: floatPtr(39.5)}, domain.CategoryElevated},
		{"low-grade fever", domain.MetricSet{Temperature: floatPtr(38.2)}, domain.CategoryWatch},
		{"hypothermia", domain.MetricSet{Temperature: floatPtr(34.5)}, domain.CategoryCritical},
		{"spo2 88 is critical", domain.MetricSet{SpO2: intPtr(88)}, domain.CategoryCritical},
		{"spo2 93 is elevated", domain.MetricSet{SpO2: intPtr(93)}, domain.CategoryElevated},
		{"spo2 95 is watch", domain.MetricSet{SpO2: intPtr(95)}, domain.CategoryWatch},
		{"spo2 97 is normal", domain.MetricSet{SpO2: intPtr(97)}, domain.CategoryNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment := Classify(tt.metrics)
			assert.Equal(t, tt.expected, assessment.Category)
		})
	}
}

func TestClassify_OverallCategoryIsMaxSeverity(t *testing.T) {
	metrics := domain.MetricSet{
		Systolic:  intPtr(190), // CRITICAL
		HeartRate: intPtr(75),  // NORMAL
	}

	assessment := Classify(metrics)

	assert.Equal(t, domain.CategoryCritical, assessment.Category)
	require.Len(t, assessment.TriggeredRules, 1)
	assert.Equal(t, "systolic", assessment.TriggeredRules[0].Metric)
}

func TestClassify_TriggeredRulesPreserveMetricOrder(t *testing.T) {
	metrics := domain.MetricSet{
		Systolic:    intPtr(150),    // ELEVATED
		HeartRate:   intPtr(125),    // ELEVATED
		Temperature: floatPtr(38.5), // WATCH
		SpO2:        intPtr(92),     // ELEVATED
	}

	assessment := Classify(metrics)

	require.Len(t, assessment.TriggeredRules, 4)
	order := make([]string, 0, len(assessment.TriggeredRules))
	for _, rule := range assessment.TriggeredRules {
		order = append(order, rule.Metric)
	}
	assert.Equal(t, []string{"systolic", "heart_rate", "temperature", "oxygen_saturation"}, order)
}

func TestClassify_Deterministic(t *testing.T) {
	metrics := domain.MetricSet{
		Systolic:  intPtr(145),
		Diastolic: intPtr(92),
		HeartRate: intPtr(105),
		SpO2:      intPtr(93),
	}

	first := Classify(metrics)
	for range 50 {
		assert.Equal(t, first, Classify(metrics))
	}
}

func TestClassify_NormalMetricsTriggerNothing(t *testing.T) {
	metrics := domain.MetricSet{
		Systolic:    intPtr(118),
		Diastolic:   intPtr(76),
		HeartRate:   intPtr(72),
		Temperature: floatPtr(36.8),
		SpO2:        intPtr(98),
	}

	assessment := Classify(metrics)

	assert.Equal(t, domain.CategoryNormal, assessment.Category)
	assert.Empty(t, assessment.TriggeredRules)
}
