// Package config loads service settings from an optional .env file, an
// optional YAML file and the environment, in that order of precedence from
// lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"ecoroute/internal/opt"
)

type Solver struct {
	TimeBudget        time.Duration `yaml:"time_budget"`
	MaxIterations     int           `yaml:"max_iterations"`
	Objective         string        `yaml:"objective"`
	AllowRejection    bool          `yaml:"allow_rejection"`
	RejectionPenalty  int64         `yaml:"rejection_penalty"`
	MaxRouteDistanceM int64         `yaml:"max_route_distance_m"`
	MaxRouteTimeS     int64         `yaml:"max_route_time_s"`
}

type Config struct {
	Port         string   `yaml:"port"`
	DatabaseURL  string   `yaml:"database_url"`
	DBDriver     string   `yaml:"db_driver"`
	DBMigrate    bool     `yaml:"db_migrate"`
	RedisURL     string   `yaml:"redis_url"`
	AllowOrigins []string `yaml:"allow_origins"`
	LogLevel     string   `yaml:"log_level"`
	LogFormat    string   `yaml:"log_format"`

	EstimatorPath       string  `yaml:"estimator_path"`
	AverageSpeedKph     float64 `yaml:"average_speed_kph"`
	Solver              Solver  `yaml:"solver"`
	MaxConcurrentSolves int     `yaml:"max_concurrent_solves"`

	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`

	AuthMode       string `yaml:"auth_mode"`
	AuthHMACSecret string `yaml:"auth_hmac_secret"`

	WebhookURLs        []string `yaml:"webhook_urls"`
	WebhookSecret      string   `yaml:"webhook_secret"`
	WebhookMaxAttempts int      `yaml:"webhook_max_attempts"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:            "8080",
		DBMigrate:       true,
		LogLevel:        "info",
		LogFormat:       "json",
		AverageSpeedKph: opt.DefaultSpeedKph,
		Solver: Solver{
			TimeBudget:        opt.DefaultTimeBudget,
			Objective:         string(opt.ObjectiveTime),
			AllowRejection:    true,
			RejectionPenalty:  opt.DefaultRejectionPenalty,
			MaxRouteDistanceM: opt.DefaultMaxRouteDistanceM,
			MaxRouteTimeS:     opt.DefaultMaxRouteTimeS,
		},
		MaxConcurrentSolves: runtime.GOMAXPROCS(0),
		AuthMode:            "none",
		WebhookMaxAttempts:  10,
	}
}

// Load reads .env (if present), the YAML file named by ECOROUTE_CONFIG (if
// set) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv("ECOROUTE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}
	e.str("PORT", &c.Port)
	e.str("DATABASE_URL", &c.DatabaseURL)
	e.str("DB_DRIVER", &c.DBDriver)
	e.boolean("DB_MIGRATE", &c.DBMigrate)
	e.str("REDIS_URL", &c.RedisURL)
	e.list("ALLOW_ORIGINS", &c.AllowOrigins)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FORMAT", &c.LogFormat)
	e.str("ESTIMATOR_PATH", &c.EstimatorPath)
	e.float("AVERAGE_SPEED_KPH", &c.AverageSpeedKph)
	e.duration("SOLVER_TIME_BUDGET", &c.Solver.TimeBudget)
	e.integer("SOLVER_MAX_ITERATIONS", &c.Solver.MaxIterations)
	e.str("SOLVER_OBJECTIVE", &c.Solver.Objective)
	e.boolean("SOLVER_ALLOW_REJECTION", &c.Solver.AllowRejection)
	e.int64("SOLVER_REJECTION_PENALTY", &c.Solver.RejectionPenalty)
	e.int64("SOLVER_MAX_ROUTE_DISTANCE_M", &c.Solver.MaxRouteDistanceM)
	e.int64("SOLVER_MAX_ROUTE_TIME_S", &c.Solver.MaxRouteTimeS)
	e.integer("MAX_CONCURRENT_SOLVES", &c.MaxConcurrentSolves)
	e.float("RATE_RPS", &c.RateRPS)
	e.integer("RATE_BURST", &c.RateBurst)
	e.str("AUTH_MODE", &c.AuthMode)
	e.str("AUTH_HMAC_SECRET", &c.AuthHMACSecret)
	e.list("WEBHOOK_URLS", &c.WebhookURLs)
	e.str("WEBHOOK_SECRET", &c.WebhookSecret)
	e.integer("WEBHOOK_MAX_ATTEMPTS", &c.WebhookMaxAttempts)
	return e.err
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch opt.Objective(c.Solver.Objective) {
	case opt.ObjectiveTime, opt.ObjectiveDistance:
	default:
		return fmt.Errorf("config: SOLVER_OBJECTIVE: unknown objective %q", c.Solver.Objective)
	}
	switch c.AuthMode {
	case "none", "dev":
	case "hmac":
		if c.AuthHMACSecret == "" {
			return errors.New("config: AUTH_HMAC_SECRET is required with AUTH_MODE=hmac")
		}
	default:
		return fmt.Errorf("config: AUTH_MODE: unknown mode %q", c.AuthMode)
	}
	if c.Solver.TimeBudget <= 0 {
		return errors.New("config: SOLVER_TIME_BUDGET must be positive")
	}
	if c.MaxConcurrentSolves < 1 {
		return errors.New("config: MAX_CONCURRENT_SOLVES must be at least 1")
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return errors.New("config: RATE_RPS and RATE_BURST must not be negative")
	}
	return nil
}

// SolverConfig maps the solver section onto the engine's configuration.
func (c Config) SolverConfig() opt.Config {
	sc := opt.DefaultConfig()
	sc.Objective = opt.Objective(c.Solver.Objective)
	sc.DisableRejection = !c.Solver.AllowRejection
	sc.RejectionPenalty = c.Solver.RejectionPenalty
	sc.MaxRouteDistanceM = c.Solver.MaxRouteDistanceM
	sc.MaxRouteTimeS = c.Solver.MaxRouteTimeS
	sc.TimeBudget = c.Solver.TimeBudget
	sc.MaxIterations = c.Solver.MaxIterations
	return sc
}

// envReader records the first parse failure so callers check once.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key string, err error) {
	e.err = fmt.Errorf("config: %s: %w", key, err)
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.get(key); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

// duration accepts Go durations ("750ms") or a bare number of seconds.
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}
