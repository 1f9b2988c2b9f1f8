package calibrate

// #region imports
import (
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/orchestrator"
	"github.com/danielpatrickdp/mdap-controller/internal/sampler"
)

// #endregion

// #region domain

// Domain is a solvable problem with a fixed start and goal.
type Domain struct {
	Name      string
	Initial   any
	Goal      any
	Validator mdap.Validator
	Codec     mdap.Codec
	Optimal   int // shortest solution length, 0 if unknown
}

// PredictorFactory returns the predictor for one episode. Implementations may
// return a shared predictor if it is safe for concurrent use.
type PredictorFactory func(cfg mdap.Config, episode int) mdap.Predictor

// #endregion

// #region options

// Options controls episode concurrency and what each orchestrator is wired with.
type Options struct {
	Concurrency int // concurrent episodes, <=0 means 1
	Sampler     sampler.Options
	Recorder    orchestrator.Recorder
	Logger      *log.Logger

	// Progress, when set, is merged with each episode's snapshot as soon as
	// the episode finishes. Results never read it.
	Progress *mdap.Metrics
	// OnResult is called with each config's result as it completes.
	OnResult func(Result)
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return o.Logger
}

// #endregion

// #region result

// Result scores one configuration over one batch of episodes.
type Result struct {
	BatchID              string                  `json:"batch_id"`
	Domain               string                  `json:"domain"`
	Config               mdap.Config             `json:"config"`
	StepBudget           int                     `json:"step_budget"`
	Episodes             int                     `json:"episodes"`
	Solved               int                     `json:"solved"`
	SuccessRate          float64                 `json:"success_rate"`
	AvgSamplesPerEpisode float64                 `json:"avg_samples_per_episode"`
	AvgStepsSolved       float64                 `json:"avg_steps_solved"`
	RedFlagRates         map[mdap.Reason]float64 `json:"red_flag_rates"`
	FailedRate           float64                 `json:"failed_rate"`
	Efficiency           float64                 `json:"efficiency"`
	Metrics              mdap.Snapshot           `json:"metrics"`
}

// Header is the column order used by Row.
func Header() []string {
	return []string{
		"k_margin", "max_candidates", "batch", "episodes", "solved",
		"success_rate", "avg_samples_per_episode", "efficiency", "failed_rate", "red_flag_rates",
	}
}

// Row renders the result as one table row.
func (r Result) Row() []string {
	return []string{
		strconv.Itoa(r.Config.KMargin),
		strconv.Itoa(r.Config.MaxCandidates),
		strconv.Itoa(r.Config.Increment()),
		strconv.Itoa(r.Episodes),
		strconv.Itoa(r.Solved),
		fmt.Sprintf("%.3f", r.SuccessRate),
		fmt.Sprintf("%.1f", r.AvgSamplesPerEpisode),
		fmt.Sprintf("%.3f", r.Efficiency),
		fmt.Sprintf("%.3f", r.FailedRate),
		formatRates(r.RedFlagRates),
	}
}

func formatRates(rates map[mdap.Reason]float64) string {
	reasons := make([]string, 0, len(rates))
	for r := range rates {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%.3f", r, rates[mdap.Reason(r)])
	}
	return out
}

// #endregion
