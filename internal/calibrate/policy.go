package calibrate

import (
	"sort"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region grid

// Grid returns every (k, cap) pair that can ever reach a confident decision,
// ordered by k then cap. Unreachable cells (cap < k), non-positive values
// and repeated pairs are skipped.
func Grid(kMargins, caps []int, batch int) []mdap.Config {
	var out []mdap.Config
	seen := make(map[mdap.Config]bool)
	for _, k := range kMargins {
		for _, c := range caps {
			cfg := mdap.Config{KMargin: k, MaxCandidates: c, BatchSize: batch}
			if cfg.Validate() != nil || seen[cfg] {
				continue
			}
			seen[cfg] = true
			out = append(out, cfg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].KMargin != out[j].KMargin {
			return out[i].KMargin < out[j].KMargin
		}
		return out[i].MaxCandidates < out[j].MaxCandidates
	})
	return out
}

// #endregion

// #region recommend

// Recommend picks the cheapest result with SuccessRate >= minSuccess.
// Ties on cost prefer higher success, then smaller k, then smaller cap.
func Recommend(results []Result, minSuccess float64) (Result, bool) {
	var best Result
	found := false
	for _, r := range results {
		if r.SuccessRate < minSuccess {
			continue
		}
		if !found || better(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

func better(a, b Result) bool {
	if a.AvgSamplesPerEpisode != b.AvgSamplesPerEpisode {
		return a.AvgSamplesPerEpisode < b.AvgSamplesPerEpisode
	}
	if a.SuccessRate != b.SuccessRate {
		return a.SuccessRate > b.SuccessRate
	}
	if a.Config.KMargin != b.Config.KMargin {
		return a.Config.KMargin < b.Config.KMargin
	}
	return a.Config.MaxCandidates < b.Config.MaxCandidates
}

// #endregion
