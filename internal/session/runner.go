package session

import (
	"context"
	"time"
)

// DefaultTickInterval is one countdown second.
const DefaultTickInterval = time.Second

// Ticker is the recurring timer a Runner drives the countdown from.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type command struct {
	fn    func(*Session) error
	reply chan error
}

// Runner is the event loop that owns a session: it serializes countdown
// ticks and caller commands onto a single goroutine.
type Runner struct {
	sess      *Session
	interval  time.Duration
	newTicker TickerFactory
	onTick    func(State)

	cmds chan command
	done chan struct{}
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithInterval sets the wall-clock length of one countdown tick.
func WithInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithTicker replaces the ticker implementation.
func WithTicker(f TickerFactory) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.newTicker = f
		}
	}
}

// WithTickHook is called on the loop goroutine after every tick.
func WithTickHook(fn func(State)) RunnerOption {
	return func(r *Runner) { r.onTick = fn }
}

// NewRunner wraps sess. Nothing runs until Run is called.
func NewRunner(sess *Session, opts ...RunnerOption) *Runner {
	r := &Runner{
		sess:      sess,
		interval:  DefaultTickInterval,
		newTicker: NewTimeTicker,
		cmds:      make(chan command),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the owned session.
func (r *Runner) Session() *Session {
	return r.sess
}

// Done is closed once Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Run blocks until the session is submitted or ctx is cancelled. The ticker
// is released on every exit path. Run must be called at most once.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := r.newTicker(r.interval)
	defer ticker.Stop()

	if r.sess.Status() == StatusSubmitted {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C():
			r.sess.Tick()
			if r.onTick != nil {
				r.onTick(r.sess.Snapshot())
			}

		case cmd := <-r.cmds:
			cmd.reply <- cmd.fn(r.sess)
		}

		if r.sess.Status() == StatusSubmitted {
			return nil
		}
	}
}

// Do runs fn on the loop goroutine and returns its error.
func (r *Runner) Do(ctx context.Context, fn func(*Session) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}

	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop always replies once it accepted the command.
	return <-cmd.reply
}
