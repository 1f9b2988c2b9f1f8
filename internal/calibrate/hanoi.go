package calibrate

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region hanoi-calibrator

// HanoiCalibrator calibrates on an n-disk tower moved from peg 0 to peg 1.
type HanoiCalibrator struct {
	*Calibrator
	Disks int
}

// NewHanoiCalibrator builds the reference calibrator.
func NewHanoiCalibrator(disks int, factory PredictorFactory, opts Options) (*HanoiCalibrator, error) {
	if disks < 1 {
		return nil, fmt.Errorf("%w: disks must be >= 1, got %d", mdap.ErrInvalidConfig, disks)
	}
	return NewHanoiCalibratorFor(hanoi.Tower(disks, 0, 3), hanoi.Tower(disks, 1, 3), factory, opts)
}

// NewHanoiCalibratorFor calibrates between arbitrary legal states.
func NewHanoiCalibratorFor(initial, goal hanoi.Pegs, factory PredictorFactory, opts Options) (*HanoiCalibrator, error) {
	if !initial.Wellformed() || !goal.Wellformed() || initial.Disks() != goal.Disks() {
		return nil, fmt.Errorf("%w: initial %s and goal %s are not a solvable pair", mdap.ErrInvalidConfig, initial, goal)
	}
	optimal := 0
	if moves, ok := hanoi.Solve(initial, goal, hanoi.OptimalLength(initial.Disks())+1); ok {
		optimal = len(moves)
	}
	c, err := New(Domain{
		Name:      fmt.Sprintf("hanoi-%d", initial.Disks()),
		Initial:   initial,
		Goal:      goal,
		Validator: hanoi.NewValidator(),
		Codec:     hanoi.Codec{},
		Optimal:   optimal,
	}, factory, opts)
	if err != nil {
		return nil, err
	}
	return &HanoiCalibrator{Calibrator: c, Disks: initial.Disks()}, nil
}

// DefaultStepBudget allows three times the optimal solution.
func (h *HanoiCalibrator) DefaultStepBudget() int {
	if h.domain.Optimal == 0 {
		return 3 * hanoi.OptimalLength(h.Disks)
	}
	return 3 * h.domain.Optimal
}

// #endregion

// #region run

// RunHanoiCalibration is the one-call entry point: an n-disk tower, the given
// grid, and a step budget that defaults to DefaultStepBudget when <= 0.
func RunHanoiCalibration(
	ctx context.Context,
	disks int,
	factory PredictorFactory,
	grid []mdap.Config,
	episodes, stepBudget int,
	opts Options,
) ([]Result, error) {
	h, err := NewHanoiCalibrator(disks, factory, opts)
	if err != nil {
		return nil, err
	}
	if stepBudget <= 0 {
		stepBudget = h.DefaultStepBudget()
	}
	return h.Calibrate(ctx, grid, episodes, stepBudget)
}

// #endregion
