package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationReport_BiasFlagged(t *testing.T) {
	t.Parallel()

	clean := ValidationReport{
		Subgroups: []SubgroupAccuracy{
			{Dimension: SubgroupOrigin, Group: "CN", Accuracy: 0.82, Support: 120},
			{Dimension: SubgroupMaterial, Group: "plastic", Accuracy: 0.85, Support: 340},
		},
	}
	assert.False(t, clean.BiasFlagged())
	assert.Empty(t, clean.FlaggedSubgroups())

	biased := ValidationReport{
		Subgroups: []SubgroupAccuracy{
			{Dimension: SubgroupOrigin, Group: "CN", Accuracy: 0.82, Support: 120},
			{Dimension: SubgroupOrigin, Group: "BD", Accuracy: 0.51, Support: 45, Flagged: true},
			{Dimension: SubgroupOrigin, Group: "KH", Accuracy: 0.33, Support: 6, Flagged: true, LowSupport: true},
		},
	}
	assert.True(t, biased.BiasFlagged())

	// A low-support flag is reported, not suppressed.
	flagged := biased.FlaggedSubgroups()
	require.Len(t, flagged, 2)
	assert.Equal(t, "BD", flagged[0].Group)
	assert.False(t, flagged[0].LowSupport)
	assert.Equal(t, "KH", flagged[1].Group)
	assert.True(t, flagged[1].LowSupport)
}
