package opt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearEstimator(t *testing.T) {
	assert.InDelta(t, 2.0, LinearEstimator{SpeedKph: 50}.Predict(100), 1e-9)
	assert.InDelta(t, 100/DefaultSpeedKph, LinearEstimator{}.Predict(100), 1e-9)
}

func TestPolynomialEstimator(t *testing.T) {
	e := PolynomialEstimator{Intercept: 0.1, Coefficients: []float64{0.02, 0.0001}}
	assert.Equal(t, 0.0, e.Predict(0))
	assert.InDelta(t, 0.1+0.02*10+0.0001*100, e.Predict(10), 1e-12)

	neg := PolynomialEstimator{Intercept: -5, Coefficients: []float64{0.01}}
	assert.Equal(t, 0.0, neg.Predict(1))
}

func TestParseEstimator(t *testing.T) {
	est, err := ParseEstimator([]byte("kind: linear\nspeed_kph: 60\n"))
	require.NoError(t, err)
	assert.Equal(t, LinearEstimator{SpeedKph: 60}, est)

	est, err = ParseEstimator([]byte(`{"kind":"polynomial","intercept":0.05,"coefficients":[0.025]}`))
	require.NoError(t, err)
	assert.InDelta(t, 0.05+0.25, est.Predict(10), 1e-12)

	_, err = ParseEstimator([]byte("kind: linear\n"))
	assert.Error(t, err)
	_, err = ParseEstimator([]byte("kind: polynomial\n"))
	assert.Error(t, err)
	_, err = ParseEstimator([]byte("kind: forest\n"))
	assert.Error(t, err)
	_, err = ParseEstimator([]byte("kind: [unterminated"))
	assert.Error(t, err)
}

func TestLoadEstimator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: regression\nintercept: 0\ncoefficients: [0.02]\n"), 0o600))
	est, err := LoadEstimator(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, est.Predict(100), 1e-9)

	_, err = LoadEstimator(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
