package sampler

// #region imports
import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #endregion

// #region options

// Options bounds the fan-out to the predictor.
type Options struct {
	Concurrency   int           // max in-flight calls per batch, <=0 means 4
	CallTimeout   time.Duration // per call, 0 = no timeout beyond ctx
	RatePerSecond float64       // 0 = unlimited
	Burst         int           // limiter burst, <=0 means Concurrency
	Logger        *log.Logger
}

// DefaultOptions returns the settings used by the CLI.
func DefaultOptions() Options {
	return Options{Concurrency: 4, CallTimeout: 30 * time.Second}
}

// #endregion

// #region batch

// Batch is the outcome of one Sample call.
type Batch struct {
	Issued  int        // calls started
	Failed  int        // calls that errored, timed out or panicked
	Raws    []mdap.Raw // delivered responses, arrival order
	Stopped bool       // accept asked to stop early
}

// #endregion

// #region sampler

// Sampler issues independent predictor calls for one decision point.
type Sampler struct {
	predictor mdap.Predictor
	opts      Options
	limiter   *rate.Limiter
	logger    *log.Logger
}

// New wraps a predictor. The rate limiter, if any, is shared by all batches.
func New(p mdap.Predictor, opts Options) *Sampler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	s := &Sampler{predictor: p, opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = opts.Concurrency
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return s
}

// Sample issues up to n calls for in. Sample indices start at offset so
// escalation batches keep numbering. accept runs serially for each arriving
// response; when it returns true, calls not yet started are skipped, in-flight
// calls are cancelled and anything they return is dropped. Sample returns only
// after every call it started has finished, so nothing leaks into a later step.
func (s *Sampler) Sample(ctx context.Context, in mdap.Context, offset, n int, accept func(mdap.Raw) bool) Batch {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(s.opts.Concurrency)

	var (
		mu      sync.Mutex
		b       Batch
		stopped bool
	)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(gctx); err != nil {
				break
			}
		}

		mu.Lock()
		if stopped {
			mu.Unlock()
			break
		}
		b.Issued++
		mu.Unlock()

		call := in
		call.Sample = offset + i
		g.Go(func() error {
			// g.Go may have blocked on the limit while the batch stopped
			mu.Lock()
			if stopped {
				b.Issued--
				mu.Unlock()
				return nil
			}
			mu.Unlock()

			text, err := s.call(gctx, call)

			mu.Lock()
			defer mu.Unlock()
			if stopped {
				return nil
			}
			if err != nil {
				b.Failed++
				s.logger.Printf("[SAMPLER] step=%d sample=%d failed: %v", call.Step, call.Sample, err)
				return nil
			}
			raw := mdap.Raw{Sample: call.Sample, Text: text}
			b.Raws = append(b.Raws, raw)
			if accept != nil && accept(raw) {
				stopped = true
				b.Stopped = true
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return b
}

// call runs one prediction under the per-call timeout. A predictor that
// ignores its context still cannot hold the batch past the deadline.
func (s *Sampler) call(ctx context.Context, in mdap.Context) (string, error) {
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("predictor panic: %v", r)}
			}
		}()
		text, err := s.predictor.Predict(ctx, in)
		ch <- result{text: text, err: err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// #endregion
