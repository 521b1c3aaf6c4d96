package opt

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// DefaultSpeedKph is used by the linear estimator when no speed is configured.
const DefaultSpeedKph = 40.0

// Estimator predicts travel duration in hours for a distance in kilometres.
// Implementations must be safe for concurrent use and should be
// non-decreasing in distance.
type Estimator interface {
	Predict(distanceKm float64) float64
}

// LinearEstimator assumes a constant average speed.
type LinearEstimator struct {
	SpeedKph float64
}

func (e LinearEstimator) Predict(distanceKm float64) float64 {
	speed := e.SpeedKph
	if speed <= 0 {
		speed = DefaultSpeedKph
	}
	return distanceKm / speed
}

// PolynomialEstimator is a regression model over powers of the distance:
// hours = intercept + c0*d + c1*d^2 + ...
type PolynomialEstimator struct {
	Intercept    float64
	Coefficients []float64
}

func (e PolynomialEstimator) Predict(distanceKm float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	h := e.Intercept
	p := distanceKm
	for _, c := range e.Coefficients {
		h += c * p
		p *= distanceKm
	}
	if h < 0 {
		return 0
	}
	return h
}

// modelArtifact is the on-disk form of a trained travel-time model.
// YAML is a superset of JSON, so exported JSON artifacts load as well.
type modelArtifact struct {
	Kind         string    `yaml:"kind"`
	SpeedKph     float64   `yaml:"speed_kph"`
	Intercept    float64   `yaml:"intercept"`
	Coefficients []float64 `yaml:"coefficients"`
}

// LoadEstimator reads a model artifact from path.
func LoadEstimator(path string) (Estimator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load estimator: read %q: %w", path, err)
	}
	est, err := ParseEstimator(data)
	if err != nil {
		return nil, fmt.Errorf("load estimator %q: %w", path, err)
	}
	return est, nil
}

// ParseEstimator decodes a model artifact.
func ParseEstimator(data []byte) (Estimator, error) {
	var a modelArtifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse estimator: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(a.Kind)) {
	case "linear":
		if a.SpeedKph <= 0 {
			return nil, fmt.Errorf("parse estimator: linear model needs speed_kph > 0")
		}
		return LinearEstimator{SpeedKph: a.SpeedKph}, nil
	case "polynomial", "regression":
		if len(a.Coefficients) == 0 {
			return nil, fmt.Errorf("parse estimator: polynomial model needs coefficients")
		}
		coef := append([]float64(nil), a.Coefficients...)
		return PolynomialEstimator{Intercept: a.Intercept, Coefficients: coef}, nil
	default:
		return nil, fmt.Errorf("parse estimator: unknown kind %q", a.Kind)
	}
}
