package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
	"github.com/danielpatrickdp/mdap-controller/internal/sampler"
)

// #endregion

// #region orchestrator-struct

// Orchestrator drives the per-step sample, validate, vote loop and the
// episode loop around it.
type Orchestrator struct {
	cfg        mdap.Config
	sampler    *sampler.Sampler
	validator  mdap.Validator
	codec      mdap.Codec
	metrics    *mdap.Metrics
	escalation *EscalationEngine
	recorder   Recorder
	fallback   FallbackPolicy
	haltOn     map[mdap.Reason]bool
	logger     *log.Logger
}

// #endregion

// #region constructor

// New validates cfg before anything else. metrics may be nil, in which case
// the orchestrator owns a fresh set.
func New(
	cfg mdap.Config,
	s *sampler.Sampler,
	validator mdap.Validator,
	codec mdap.Codec,
	metrics *mdap.Metrics,
	opts ...Option,
) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil || validator == nil || codec == nil {
		return nil, fmt.Errorf("%w: sampler, validator and codec are required", mdap.ErrInvalidConfig)
	}
	if metrics == nil {
		metrics = mdap.NewMetrics()
	}
	o := &Orchestrator{
		cfg:        cfg,
		sampler:    s,
		validator:  validator,
		codec:      codec,
		metrics:    metrics,
		escalation: NewEscalationEngine(cfg),
		haltOn:     make(map[mdap.Reason]bool),
		logger:     discardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the validated config.
func (o *Orchestrator) Config() mdap.Config { return o.cfg }

// Metrics returns a snapshot of everything this orchestrator recorded.
func (o *Orchestrator) Metrics() mdap.Snapshot { return o.metrics.Snapshot() }

// #endregion

// #region step

// Step decides one decision point and records it in the metrics.
func (o *Orchestrator) Step(ctx context.Context, in mdap.Context) (mdap.Decision, mdap.Round) {
	d, round, rec := o.step(ctx, in)
	o.metrics.RecordStep(rec)
	return d, round
}

func (o *Orchestrator) step(ctx context.Context, in mdap.Context) (mdap.Decision, mdap.Round, mdap.StepRecord) {
	prev := in.State
	tally := mdap.NewTally()
	round := mdap.Round{RunID: in.RunID, Step: in.Step, Prev: prev, Config: o.cfg}

	var (
		flags   []mdap.Reason
		verdict = mdap.Decide(tally, o.cfg.KMargin)
	)

	// Callbacks run serially inside the sampler and all finish before Sample returns.
	accept := func(raw mdap.Raw) bool {
		c := o.validator.Validate(prev, raw)
		rs := mdap.RoundSample{Sample: raw.Sample, Text: raw.Text, Valid: c.Valid}
		if c.Valid {
			c.Key = mdap.CandidateKey(o.codec, c)
			tally.Add(c)
			rs.Key = c.Key
		} else {
			flags = append(flags, c.Reason)
			rs.Reason = c.Reason
		}
		round.Samples = append(round.Samples, rs)
		verdict = mdap.Decide(tally, o.cfg.KMargin)
		return verdict.Confident
	}

	for {
		n := o.escalation.NextBatch(round.Issued, verdict)
		if n == 0 {
			break
		}
		if round.Issued > 0 {
			o.logger.Printf("[MDAP] step=%d escalate: drawn=%d margin=%d next=%d",
				in.Step, round.Issued, verdict.Margin, n)
		}
		b := o.sampler.Sample(ctx, in, round.Issued, n, accept)
		round.Issued += b.Issued
		round.Failed += b.Failed
		if b.Issued == 0 || ctx.Err() != nil {
			break
		}
	}

	d := mdap.Decision{
		Step:    in.Step,
		Key:     verdict.Winner,
		Votes:   verdict.WinnerVotes,
		Margin:  verdict.Margin,
		Samples: round.Issued,
		Valid:   tally.Total(),
	}
	if verdict.Confident {
		d.Confidence = mdap.Confident
		d.RedFlag = mdap.ReasonNone
	} else {
		d.Confidence = mdap.Inconclusive
		d.RedFlag = verdict.Reason()
		flags = append(flags, d.RedFlag)
	}

	winner, ok := tally.Candidate(verdict.Winner)
	if !verdict.Confident && o.fallback != nil {
		if c, fok := o.fallback(prev, verdict, tally); fok {
			winner, ok = c, true
		}
	}
	if ok {
		d.State, d.Move = winner.State, winner.Move
	} else {
		// nothing valid to apply: stay put
		d.State = prev
	}

	o.logger.Printf("[MDAP] step=%d samples=%d valid=%d votes=%d margin=%d flag=%s",
		d.Step, d.Samples, d.Valid, d.Votes, d.Margin, d.RedFlag)

	return d, round, mdap.StepRecord{Samples: round.Issued, Failed: round.Failed, Flags: flags}
}

// #endregion

// #region run

// Run steps from initial until the codec says the state equals goal or budget
// steps were taken. An unsolved episode is not an error; only a cancelled
// context or a halting red flag returns one, together with the partial episode.
func (o *Orchestrator) Run(ctx context.Context, initial, goal any, budget int) (Episode, error) {
	ep := Episode{
		RunID:   uuid.NewString(),
		Initial: initial,
		Goal:    goal,
		Budget:  budget,
	}
	local := mdap.NewMetrics()
	o.record(func() error { return o.recorder.StartRun(ctx, ep.RunID, initial, goal, o.cfg, budget) })

	finish := func(state any, err error) (Episode, error) {
		ep.FinalState = state
		ep.Metrics = local.Snapshot()
		o.record(func() error { return o.recorder.FinishRun(context.WithoutCancel(ctx), ep) })
		o.logger.Printf("[MDAP] run=%s solved=%v steps=%d samples=%d red_flags=%d",
			ep.RunID, ep.Solved, ep.Steps(), ep.Metrics.TotalSamples, ep.Metrics.TotalRedFlags)
		return ep, err
	}

	state := initial
	var prevMove any
	for step := 1; ; step++ {
		if o.codec.Equal(state, goal) {
			ep.Solved = true
			return finish(state, nil)
		}
		if step > budget {
			return finish(state, nil)
		}
		if err := ctx.Err(); err != nil {
			return finish(state, err)
		}

		d, round, rec := o.step(ctx, mdap.Context{
			RunID:        ep.RunID,
			Step:         step,
			State:        state,
			PreviousMove: prevMove,
			Goal:         goal,
		})
		o.metrics.RecordStep(rec)
		local.RecordStep(rec)
		ep.Trace = append(ep.Trace, d)
		o.record(func() error { return o.recorder.RecordStep(ctx, d, round) })

		state, prevMove = d.State, d.Move
		if d.Flagged() && o.haltOn[d.RedFlag] {
			ep.Halted = true
			return finish(state, fmt.Errorf("%w: step %d %s", mdap.ErrHalted, d.Step, d.RedFlag))
		}
	}
}

func (o *Orchestrator) record(fn func() error) {
	if o.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		o.logger.Printf("[MDAP] recorder error: %v", err)
	}
}

// #endregion
