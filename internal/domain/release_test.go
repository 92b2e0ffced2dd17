package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseDescriptor_StagedRollout(t *testing.T) {
	for _, f := range []float64{0.0001, 0.1, 0.5, 0.999} {
		fraction := f
		d := NewReleaseDescriptor([]int64{3, 1, 2, 1}, &fraction, nil)
		assert.Equal(t, ReleaseStatusInProgress, d.Status, "fraction %v", f)
		require.NotNil(t, d.RolloutFraction, "fraction %v", f)
		assert.Equal(t, f, *d.RolloutFraction)
		assert.Equal(t, []int64{1, 2, 3}, d.VersionCodes)
	}
}

func TestReleaseDescriptor_CompletedRollout(t *testing.T) {
	zero, one := 0.0, 1.0
	for _, fraction := range []*float64{&zero, &one, nil} {
		d := NewReleaseDescriptor([]int64{42}, fraction, nil)
		assert.Equal(t, ReleaseStatusCompleted, d.Status)
		assert.Nil(t, d.RolloutFraction)
	}
}

func TestReleaseDescriptor_WithRolloutDoesNotAlias(t *testing.T) {
	f := 0.25
	d := NewReleaseDescriptor([]int64{1}, &f, nil)
	f = 0.75
	assert.Equal(t, 0.25, *d.RolloutFraction)
}

func TestFractionFromPercentage(t *testing.T) {
	assert.Equal(t, 1.0, *FractionFromPercentage(100))
	assert.Equal(t, 0.125, *FractionFromPercentage(12.5))
}
