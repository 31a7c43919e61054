package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceSamePoint(t *testing.T) {
	d, ok := Distance(Ptr(6.1319), Ptr(1.2228), Ptr(6.1319), Ptr(1.2228))
	require.True(t, ok)
	assert.Equal(t, 0.0, d)
}

func TestDistanceSymmetry(t *testing.T) {
	d1, ok1 := Distance(Ptr(6.1319), Ptr(1.2228), Ptr(6.1700), Ptr(1.2500))
	d2, ok2 := Distance(Ptr(6.1700), Ptr(1.2500), Ptr(6.1319), Ptr(1.2228))
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, d1, d2)
}

func TestDistanceLomeFixture(t *testing.T) {
	// Lomé center vs a point roughly 5.2 km north-east; must exceed the
	// 5 km dispersion warning threshold used by cart consolidation.
	d, ok := Distance(Ptr(6.1319), Ptr(1.2228), Ptr(6.1700), Ptr(1.2500))
	require.True(t, ok)
	assert.Greater(t, d, 5.0)
	assert.Less(t, d, 10.0)
}

func TestDistanceMissingCoordinates(t *testing.T) {
	_, ok := Distance(nil, Ptr(1.2228), Ptr(6.1700), Ptr(1.2500))
	assert.False(t, ok)

	_, ok = Distance(Ptr(6.1319), Ptr(1.2228), Ptr(6.1700), nil)
	assert.False(t, ok)
}

func TestDistanceRounding(t *testing.T) {
	d, ok := Distance(Ptr(6.1319), Ptr(1.2228), Ptr(6.2000), Ptr(1.3000))
	require.True(t, ok)
	assert.Equal(t, d, round2(d))
}
