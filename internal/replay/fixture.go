package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/logging"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Domain          string                  `json:"domain"`
	Config          mdap.Config             `json:"config"`
	Rounds          []FixtureRound          `json:"rounds"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureRound mirrors Recorded with JSON tags.
type FixtureRound struct {
	Key     string      `json:"key,omitempty"`
	RedFlag mdap.Reason `json:"red_flag"`
	Round   mdap.Round  `json:"round"`
}

// FixtureExpectedResult captures the expected decision per step.
type FixtureExpectedResult struct {
	Step      int         `json:"step"`
	Key       string      `json:"key"`
	RedFlag   mdap.Reason `json:"red_flag"`
	Exhausted bool        `json:"exhausted,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Write stores the fixture as indented JSON.
func (f *Fixture) Write(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// Recorded converts fixture rounds to domain rounds.
func (f *Fixture) Recorded() []Recorded {
	out := make([]Recorded, len(f.Rounds))
	for i, r := range f.Rounds {
		out[i] = Recorded{Round: r.Round, Key: r.Key, RedFlag: r.RedFlag}
	}
	return out
}

// DomainLogic returns the validator and codec named by the fixture.
func (f *Fixture) DomainLogic() (mdap.Validator, mdap.Codec, error) {
	return DomainLogic(f.Domain)
}

// DomainLogic resolves a domain name. Only the reference puzzle is built in.
func DomainLogic(name string) (mdap.Validator, mdap.Codec, error) {
	switch name {
	case "", "hanoi":
		return hanoi.NewValidator(), hanoi.Codec{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown domain %q", mdap.ErrInvalidConfig, name)
	}
}

// Run replays the fixture under its own config.
func (f *Fixture) Run() ([]ReplayResult, error) {
	v, c, err := f.DomainLogic()
	if err != nil {
		return nil, err
	}
	return Replay(f.Recorded(), f.Config, v, c)
}

// Mismatches compares results with the expected outcomes.
func (f *Fixture) Mismatches(results []ReplayResult) []string {
	var out []string
	if len(results) != len(f.ExpectedResults) {
		out = append(out, fmt.Sprintf("expected %d results, got %d", len(f.ExpectedResults), len(results)))
	}
	for i, exp := range f.ExpectedResults {
		if i >= len(results) {
			break
		}
		got := results[i]
		if got.Step != exp.Step || got.Decision.Key != exp.Key || got.Decision.RedFlag != exp.RedFlag || got.Exhausted != exp.Exhausted {
			out = append(out, fmt.Sprintf("step %d: expected key=%q flag=%s exhausted=%v, got step %d key=%q flag=%s exhausted=%v",
				exp.Step, exp.Key, exp.RedFlag, exp.Exhausted, got.Step, got.Decision.Key, got.Decision.RedFlag, got.Exhausted))
		}
	}
	return out
}

// #endregion fixture-loader

// #region fixture-builder

// FromRounds builds a fixture from persisted rounds. Expected results are
// the replay of those rounds under cfg.
func FromRounds(description, domain string, cfg mdap.Config, entries []logging.RoundEntry) (*Fixture, error) {
	f := &Fixture{Description: description, Domain: domain, Config: cfg}
	for _, rec := range FromEntries(entries) {
		f.Rounds = append(f.Rounds, FixtureRound{Key: rec.Key, RedFlag: rec.RedFlag, Round: rec.Round})
	}
	results, err := f.Run()
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			Step:      r.Step,
			Key:       r.Decision.Key,
			RedFlag:   r.Decision.RedFlag,
			Exhausted: r.Exhausted,
		})
	}
	return f, nil
}

// #endregion fixture-builder
