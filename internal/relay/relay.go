// Package relay turns a sequence of text fragments into a paced byte stream
// for a single HTTP consumer.
package relay

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recruitu/networku/internal/metrics"
)

// Stream outcomes recorded when the writer side closes.
const (
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
	OutcomeClosed    = "closed"
)

// Config sets the typing cadence. Each fragment is followed by a pause of
// Delay plus a random duration in [0, Jitter).
type Config struct {
	Delay  time.Duration
	Jitter time.Duration
}

// DefaultConfig returns the standard 50-100ms cadence.
func DefaultConfig() Config {
	return Config{
		Delay:  50 * time.Millisecond,
		Jitter: 50 * time.Millisecond,
	}
}

// Relay starts paced streams.
type Relay struct {
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Relay.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Relay{cfg: cfg, metrics: m, logger: logger}
}

// Stream is the read side of a relayed reply. It is meant for exactly one
// consumer; each Read returns bytes from at most one fragment.
type Stream struct {
	pr     *io.PipeReader
	pw     *io.PipeWriter
	cancel context.CancelFunc

	once     sync.Once
	closed   atomic.Bool
	done     chan struct{}
	err      error
	outcome  string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	fragsOut atomic.Int64
}

// Start runs a producer goroutine that writes every non-empty fragment to the
// stream and pauses between fragments. The producer stops when fragments are
// exhausted or fail, when ctx is cancelled, or when the consumer closes the
// stream.
func (r *Relay) Start(ctx context.Context, fragments iter.Seq2[string, error]) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	s := &Stream{
		pr:      pr,
		pw:      pw,
		cancel:  cancel,
		done:    make(chan struct{}),
		metrics: r.metrics,
		logger:  r.logger,
	}

	// Unblocks a pending Write when the request goes away.
	stop := context.AfterFunc(ctx, func() { s.finish(ctx.Err()) })

	go func() {
		defer close(s.done)
		defer cancel()
		defer stop()

		var err error
		for frag, ferr := range fragments {
			if ferr != nil {
				err = ferr
				break
			}
			if frag == "" {
				continue
			}
			if _, werr := pw.Write([]byte(frag)); werr != nil {
				err = werr
				break
			}
			s.fragsOut.Add(1)
			r.metrics.ObserveFragment()
			if perr := r.pause(ctx); perr != nil {
				err = perr
				break
			}
		}
		if err == nil {
			err = ctx.Err()
		}
		s.finish(err)
	}()
	return s
}

func (r *Relay) pause(ctx context.Context) error {
	d := r.cfg.Delay
	if r.cfg.Jitter > 0 {
		d += rand.N(r.cfg.Jitter)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// finish closes the writer side. Only the first call has an effect.
func (s *Stream) finish(err error) {
	s.once.Do(func() {
		switch {
		case s.closed.Load():
			s.outcome = OutcomeClosed
		case err == nil:
			s.outcome = OutcomeCompleted
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.outcome = OutcomeCancelled
		default:
			s.outcome = OutcomeError
		}
		s.err = err
		if err != nil {
			_ = s.pw.CloseWithError(err)
		} else {
			_ = s.pw.Close()
		}
		s.metrics.ObserveStreamClosed(s.outcome)
		s.logger.Debug("relay: stream closed", "outcome", s.outcome, "fragments", s.fragsOut.Load(), "error", err)
	})
}

// Read reads the next bytes of the reply. It returns io.EOF after the last
// fragment, or the producer's error if the reply failed.
func (s *Stream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close abandons the stream and stops the producer. It does not wait for the
// producer to exit; use Wait for that.
func (s *Stream) Close() error {
	s.closed.Store(true)
	s.cancel()
	return s.pr.Close()
}

// Wait blocks until the producer has exited and returns the terminal error,
// nil when every fragment was delivered.
func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

// Outcome reports how the stream ended. It is only meaningful after Wait.
func (s *Stream) Outcome() string {
	<-s.done
	return s.outcome
}

// Text returns a fragment sequence that replays s word by word, so fixed
// replies are paced like generated ones.
func Text(s string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, word := range strings.SplitAfter(s, " ") {
			if word == "" {
				continue
			}
			if !yield(word, nil) {
				return
			}
		}
	}
}
