package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	assert.Equal(t, 0.0, DistanceKm(-22.43, -42.97, -22.43, -42.97))

	// One degree of latitude along a meridian.
	assert.InDelta(t, 111.19, DistanceKm(0, 0, 1, 0), 0.01)

	// Symmetric in its endpoints.
	a := DistanceKm(-22.4338603, -42.9791791, -22.3936848, -42.959655)
	b := DistanceKm(-22.3936848, -42.959655, -22.4338603, -42.9791791)
	assert.Equal(t, a, b)
	assert.InDelta(t, 4.9, a, 0.3)
}
