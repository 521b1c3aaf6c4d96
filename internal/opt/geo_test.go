package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	a := Location{Lat: 0, Lng: 0}
	b := Location{Lat: 0, Lng: 1}
	assert.InDelta(t, 111.195, Haversine(a, b), 0.001)
	assert.Equal(t, 0.0, Haversine(a, a))

	paris := Location{Lat: 48.8566, Lng: 2.3522}
	berlin := Location{Lat: 52.52, Lng: 13.405}
	d := Haversine(paris, berlin)
	assert.Greater(t, d, 870.0)
	assert.Less(t, d, 890.0)
	assert.Equal(t, d, Haversine(berlin, paris))
}

func TestHaversinePropagatesNaN(t *testing.T) {
	d := Haversine(Location{Lat: math.NaN()}, Location{Lat: 1, Lng: 1})
	assert.True(t, math.IsNaN(d))
}

func TestLocationValid(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		want bool
	}{
		{"origin", Location{}, true},
		{"corners", Location{Lat: -90, Lng: 180}, true},
		{"lat too big", Location{Lat: 90.1}, false},
		{"lng too small", Location{Lng: -180.5}, false},
		{"nan", Location{Lat: math.NaN()}, false},
		{"inf", Location{Lng: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.Valid())
		})
	}
}
