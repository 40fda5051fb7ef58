package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greenshelf/ecoscore/internal/monitoring"
)

func TestFormatSnapshot(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.MetricsSnapshot{
		ResultsTotal:    40,
		TierHigh:        30,
		TierMedium:      8,
		TierLow:         2,
		SourceRule:      12,
		SourceBlended:   28,
		Degraded:        10,
		DegradedRate:    0.25,
		AgreementRate:   0.9,
		AvgDisagreement: 0.08,
		AvgFinalCO2eKg:  3.4,
		ModelVersion:    "gbt-abc123def456",
		GatePassed:      true,
		LookbackHours:   24,
	})

	out := buf.String()
	assert.Contains(t, out, "last 24h")
	assert.Contains(t, out, "40")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "90.0% of 30 compared")
	assert.Contains(t, out, "gbt-abc123def456")
	assert.Contains(t, out, "gate passed")
}

func TestFormatSnapshot_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.MetricsSnapshot{LookbackHours: 24})

	out := buf.String()
	assert.Contains(t, out, "none published")
	assert.NotContains(t, out, "Agreement")
	assert.NotContains(t, out, "Avg CO2e")
}

func TestFormatSnapshot_GateFailed(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.MetricsSnapshot{
		ResultsTotal:  5,
		LookbackHours: 48,
		ModelVersion:  "gbt-deadbeef0000",
		GatePassed:    false,
	})

	assert.Contains(t, buf.String(), "gate FAILED")
}
