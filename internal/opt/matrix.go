package opt

import "math"

// Matrices holds all-pairs arc costs in solver units: metres and seconds.
type Matrices struct {
	Distance [][]int64
	Time     [][]int64
}

// BuildMatrices computes every off-diagonal entry independently, so a
// non-linear estimator is never assumed to satisfy the triangle inequality.
// A nil estimator falls back to LinearEstimator at DefaultSpeedKph.
func BuildMatrices(locs []Location, est Estimator) Matrices {
	if est == nil {
		est = LinearEstimator{SpeedKph: DefaultSpeedKph}
	}
	n := len(locs)
	m := Matrices{Distance: make([][]int64, n), Time: make([][]int64, n)}
	for i := 0; i < n; i++ {
		m.Distance[i] = make([]int64, n)
		m.Time[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			km := Haversine(locs[i], locs[j])
			m.Distance[i][j] = kmToMetres(km)
			m.Time[i][j] = hoursToSeconds(est.Predict(km))
		}
	}
	return m
}

func kmToMetres(km float64) int64 { return int64(math.Round(km * 1000)) }

func hoursToSeconds(h float64) int64 { return int64(math.Round(h * 3600)) }

func metresToKm(m int64) float64 { return float64(m) / 1000 }

func secondsToHours(s int64) float64 { return float64(s) / 3600 }
