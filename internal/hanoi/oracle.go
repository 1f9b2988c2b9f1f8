package hanoi

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #endregion

// #region render

// Render formats a move and next state the way predictors are asked to answer.
func Render(m Move, next Pegs) string {
	b, _ := json.Marshal(struct {
		Move           Move `json:"move"`
		PredictedState Pegs `json:"predicted_state"`
	}{m, next})
	return string(b)
}

// #endregion

// #region oracle

// ErrNoMove is returned when the oracle has nothing to propose.
var ErrNoMove = errors.New("no move toward goal")

// Oracle is a perfect predictor: it always answers the solver's next move.
type Oracle struct{}

// Predict implements mdap.Predictor.
func (Oracle) Predict(ctx context.Context, in mdap.Context) (string, error) {
	m, next, err := oracleMove(ctx, in)
	if err != nil {
		return "", err
	}
	return Render(m, next), nil
}

func oracleMove(ctx context.Context, in mdap.Context) (Move, Pegs, error) {
	if err := ctx.Err(); err != nil {
		return Move{}, nil, err
	}
	state, ok := toPegs(in.State)
	if !ok {
		return Move{}, nil, fmt.Errorf("oracle: unreadable state %v", in.State)
	}
	goal, ok := toPegs(in.Goal)
	if !ok {
		return Move{}, nil, fmt.Errorf("oracle: unreadable goal %v", in.Goal)
	}
	m, ok := NextMove(state, goal)
	if !ok {
		return Move{}, nil, ErrNoMove
	}
	next, _ := state.Apply(m)
	return m, next, nil
}

// #endregion

// #region noisy

// Fault is a kind of injected predictor error.
type Fault string

const (
	FaultWrongMove     Fault = "wrong_move"     // legal move, consistent state, not on the solution path
	FaultIllegalMove   Fault = "illegal_move"   // breaks a legality rule
	FaultMalformed     Fault = "malformed"      // unparseable output
	FaultStateMismatch Fault = "state_mismatch" // right move, wrong claimed state
)

// AllFaults is the default fault mix, drawn uniformly.
var AllFaults = []Fault{FaultWrongMove, FaultIllegalMove, FaultMalformed, FaultStateMismatch}

// Noisy wraps the oracle and corrupts a fraction of answers. Randomness is
// derived from (Seed, Step, Sample) only, so results do not depend on call
// scheduling or run IDs. Vary Seed to get independent episodes.
type Noisy struct {
	ErrorRate float64
	Seed      int64
	Faults    []Fault
}

// Predict implements mdap.Predictor.
func (n *Noisy) Predict(ctx context.Context, in mdap.Context) (string, error) {
	m, next, err := oracleMove(ctx, in)
	if err != nil {
		return "", err
	}
	rng := rand.New(rand.NewSource(n.seedFor(in)))
	if rng.Float64() >= n.ErrorRate {
		return Render(m, next), nil
	}

	faults := n.Faults
	if len(faults) == 0 {
		faults = AllFaults
	}
	state, _ := toPegs(in.State)
	switch faults[rng.Intn(len(faults))] {
	case FaultWrongMove:
		var others []Move
		for _, lm := range state.LegalMoves() {
			if lm.From != m.From || lm.To != m.To {
				others = append(others, lm)
			}
		}
		if len(others) > 0 {
			w := others[rng.Intn(len(others))]
			wn, _ := state.Apply(w)
			return Render(w, wn), nil
		}
		return "I cannot decide.", nil
	case FaultIllegalMove:
		return Render(illegalMove(state, rng), state), nil
	case FaultStateMismatch:
		return Render(m, state), nil
	default:
		return fmt.Sprintf("Let me think. The best move is probably disk %d", m.Disk), nil
	}
}

func (n *Noisy) seedFor(in mdap.Context) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%d/%d", n.Seed, in.Step, in.Sample)
	return int64(h.Sum64())
}

// illegalMove picks an empty source, or failing that a larger disk onto a smaller one.
func illegalMove(state Pegs, rng *rand.Rand) Move {
	for i := range state {
		if len(state[i]) == 0 {
			return Move{From: i, To: (i + 1 + rng.Intn(len(state)-1)) % len(state)}
		}
	}
	for from := range state {
		for to := range state {
			if from != to && state.Top(to) < state.Top(from) {
				return Move{Disk: state.Top(from), From: from, To: to}
			}
		}
	}
	return Move{From: 0, To: 0}
}

// #endregion
