package config

// #region imports
import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/mdap-controller/internal/calibrate"
	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/sampler"
)

// #endregion

// #region types

// File is the on-disk configuration. YAML and TOML share field names.
type File struct {
	MDAP        MDAP        `yaml:"mdap" toml:"mdap"`
	Hanoi       Hanoi       `yaml:"hanoi" toml:"hanoi"`
	Predictor   Predictor   `yaml:"predictor" toml:"predictor"`
	Calibration Calibration `yaml:"calibration" toml:"calibration"`
	Storage     Storage     `yaml:"storage" toml:"storage"`
}

// MDAP holds the protocol parameters and the sampler bounds.
type MDAP struct {
	KMargin       int      `yaml:"k_margin" toml:"k_margin" validate:"gte=1"`
	MaxCandidates int      `yaml:"max_candidates" toml:"max_candidates" validate:"gte=1,gtefield=KMargin"`
	BatchSize     int      `yaml:"batch_escalation_size" toml:"batch_escalation_size" validate:"gte=0"`
	Concurrency   int      `yaml:"concurrency" toml:"concurrency" validate:"gte=0"`
	CallTimeout   Duration `yaml:"call_timeout" toml:"call_timeout"`
	RatePerSecond float64  `yaml:"rate_per_second" toml:"rate_per_second" validate:"gte=0"`
}

// Hanoi describes the reference puzzle instance.
type Hanoi struct {
	InitialPegs [][]int `yaml:"initial_pegs" toml:"initial_pegs"`
	GoalPegs    [][]int `yaml:"goal_pegs" toml:"goal_pegs"`
	StepBudget  int     `yaml:"step_budget" toml:"step_budget" validate:"gte=1"`
}

// Predictor selects and configures the candidate source.
type Predictor struct {
	Kind           string  `yaml:"kind" toml:"kind" validate:"oneof=oracle noisy openai grpc"`
	Model          string  `yaml:"model" toml:"model"`
	BaseURL        string  `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	APIKey         string  `yaml:"api_key" toml:"api_key"`
	Addr           string  `yaml:"addr" toml:"addr" validate:"required_if=Kind grpc"`
	Temperature    float32 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	ErrorRate      float64 `yaml:"error_rate" toml:"error_rate" validate:"gte=0,lte=1"`
	Seed           int64   `yaml:"seed" toml:"seed"`
	PromptTemplate string  `yaml:"prompt_template" toml:"prompt_template"`
}

// Calibration is the parameter grid and episode count.
type Calibration struct {
	KMargins       []int   `yaml:"k_margins" toml:"k_margins" validate:"min=1,dive,gte=1"`
	MaxCandidates  []int   `yaml:"max_candidates" toml:"max_candidates" validate:"min=1,dive,gte=1"`
	BatchSize      int     `yaml:"batch_escalation_size" toml:"batch_escalation_size" validate:"gte=0"`
	Episodes       int     `yaml:"episodes" toml:"episodes" validate:"gte=1"`
	Concurrency    int     `yaml:"concurrency" toml:"concurrency" validate:"gte=0"`
	MinSuccessRate float64 `yaml:"min_success_rate" toml:"min_success_rate" validate:"gte=0,lte=1"`
}

// Storage locates the sqlite database.
type Storage struct {
	DBPath string `yaml:"db_path" toml:"db_path" validate:"required"`
}

// #endregion

// #region duration

// Duration accepts "30s" style strings in both YAML and TOML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler, which TOML uses.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// #endregion

// #region defaults

// Default mirrors the reference agent: a 3-disk tower, k=2, ten candidates.
func Default() File {
	return File{
		MDAP: MDAP{
			KMargin:       2,
			MaxCandidates: 10,
			BatchSize:     2,
			Concurrency:   4,
			CallTimeout:   Duration{30 * time.Second},
		},
		Hanoi: Hanoi{
			InitialPegs: hanoi.Tower(3, 0, 3),
			GoalPegs:    hanoi.Tower(3, 1, 3),
			StepBudget:  20,
		},
		Predictor: Predictor{Kind: "oracle", Model: "gpt-4o-mini", Temperature: 0.7},
		Calibration: Calibration{
			KMargins:       []int{1, 2, 3},
			MaxCandidates:  []int{3, 5, 9},
			Episodes:       20,
			Concurrency:    4,
			MinSuccessRate: 0.9,
		},
		Storage: Storage{DBPath: "mdap.db"},
	}
}

// #endregion

// #region load

var validate = validator.New()

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path means defaults plus environment.
func Load(path string) (File, error) {
	f := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(raw), &f); err != nil {
				return File{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case ".yaml", ".yml", "":
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return File{}, fmt.Errorf("parse %s: %w", path, err)
			}
		default:
			return File{}, fmt.Errorf("%w: unsupported config format %q", mdap.ErrInvalidConfig, filepath.Ext(path))
		}
	}
	f.applyEnv()
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f *File) applyEnv() {
	f.Storage.DBPath = envOr("MDAP_DB", f.Storage.DBPath)
	f.Predictor.Addr = envOr("MDAP_PREDICTOR_ADDR", f.Predictor.Addr)
	f.Predictor.APIKey = envOr("OPENAI_API_KEY", f.Predictor.APIKey)
	f.Predictor.BaseURL = envOr("OPENAI_BASE_URL", f.Predictor.BaseURL)
	f.Predictor.Model = envOr("OPENAI_MODEL", f.Predictor.Model)
}

// Validate checks struct tags and the puzzle instance.
func (f File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", mdap.ErrInvalidConfig, err)
	}
	if err := f.Protocol().Validate(); err != nil {
		return err
	}
	initial, goal := f.Initial(), f.Goal()
	if !initial.Wellformed() || !goal.Wellformed() || initial.Disks() != goal.Disks() || len(initial) != 3 || len(goal) != 3 {
		return fmt.Errorf("%w: hanoi initial %s and goal %s must be three-peg states over the same disks",
			mdap.ErrInvalidConfig, initial, goal)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion

// #region accessors

// Protocol returns the MDAP parameters.
func (f File) Protocol() mdap.Config {
	return mdap.Config{KMargin: f.MDAP.KMargin, MaxCandidates: f.MDAP.MaxCandidates, BatchSize: f.MDAP.BatchSize}
}

// SamplerOptions returns the fan-out bounds.
func (f File) SamplerOptions() sampler.Options {
	return sampler.Options{
		Concurrency:   f.MDAP.Concurrency,
		CallTimeout:   f.MDAP.CallTimeout.Duration,
		RatePerSecond: f.MDAP.RatePerSecond,
	}
}

// Initial returns the configured start state.
func (f File) Initial() hanoi.Pegs { return pegs(f.Hanoi.InitialPegs) }

// Goal returns the configured goal state.
func (f File) Goal() hanoi.Pegs { return pegs(f.Hanoi.GoalPegs) }

// Grid returns the reachable calibration grid.
func (f File) Grid() []mdap.Config {
	return calibrate.Grid(f.Calibration.KMargins, f.Calibration.MaxCandidates, f.Calibration.BatchSize)
}

func pegs(in [][]int) hanoi.Pegs {
	out := make(hanoi.Pegs, len(in))
	for i, p := range in {
		out[i] = append([]int{}, p...)
	}
	return out
}

// #endregion
