package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoroute/internal/opt"
)

func lookupMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "8080", c.Port)
	assert.True(t, c.Solver.AllowRejection)
	assert.Equal(t, opt.DefaultTimeBudget, c.Solver.TimeBudget)
	assert.GreaterOrEqual(t, c.MaxConcurrentSolves, 1)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.applyEnv(lookupMap(map[string]string{
		"PORT":                   "9090",
		"SOLVER_TIME_BUDGET":     "2.5",
		"SOLVER_OBJECTIVE":       "distance",
		"SOLVER_ALLOW_REJECTION": "false",
		"SOLVER_MAX_ITERATIONS":  "500",
		"ALLOW_ORIGINS":          "http://a.test, http://b.test,",
		"RATE_RPS":               "3.5",
		"WEBHOOK_URLS":           "http://hooks.test/x",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, 2500*time.Millisecond, c.Solver.TimeBudget)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.AllowOrigins)
	assert.Equal(t, 3.5, c.RateRPS)
	assert.Equal(t, []string{"http://hooks.test/x"}, c.WebhookURLs)

	sc := c.SolverConfig()
	assert.Equal(t, opt.ObjectiveDistance, sc.Objective)
	assert.True(t, sc.DisableRejection)
	assert.Equal(t, 500, sc.MaxIterations)
	assert.Equal(t, opt.DimensionDistance, sc.PrecedenceDimension)
}

func TestApplyEnvDuration(t *testing.T) {
	c := Default()
	require.NoError(t, c.applyEnv(lookupMap(map[string]string{"SOLVER_TIME_BUDGET": "750ms"})))
	assert.Equal(t, 750*time.Millisecond, c.Solver.TimeBudget)
}

func TestApplyEnvErrorsNameKey(t *testing.T) {
	c := Default()
	err := c.applyEnv(lookupMap(map[string]string{"MAX_CONCURRENT_SOLVES": "many"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_SOLVES")
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Solver.Objective = "fuel"
	assert.Error(t, c.Validate())

	c = Default()
	c.AuthMode = "hmac"
	assert.Error(t, c.Validate())
	c.AuthHMACSecret = "s3cret"
	assert.NoError(t, c.Validate())

	c = Default()
	c.MaxConcurrentSolves = 0
	assert.Error(t, c.Validate())
}

func TestLoadFromYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecoroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
estimator_path: /models/eta.yaml
solver:
  time_budget: 3s
  objective: distance
  allow_rejection: true
  max_route_distance_m: 250000
`), 0o600))
	t.Setenv("ECOROUTE_CONFIG", path)
	t.Setenv("PORT", "6060")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "6060", c.Port)
	assert.Equal(t, "/models/eta.yaml", c.EstimatorPath)
	assert.Equal(t, 3*time.Second, c.Solver.TimeBudget)
	assert.Equal(t, int64(250000), c.Solver.MaxRouteDistanceM)
	assert.Equal(t, "distance", c.Solver.Objective)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("ECOROUTE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
