// Package shutdown implements cooperative cancellation for a crawl run: a Token that
// the scheduler polls at checkpoints, and interrupt escalation to a forced exit.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultEscalationWindow is how soon a second interrupt must follow the first to force an exit
const DefaultEscalationWindow = 3 * time.Second

// Escalation describes what an Interrupt did
type Escalation int

const (
	// EscalationGraceful means cancellation was requested; the run finishes its current step.
	EscalationGraceful Escalation = iota
	// EscalationRepeated means an interrupt arrived after the window closed; it restarts the window.
	EscalationRepeated
	// EscalationForced means the exit function was called.
	EscalationForced
)

func (e Escalation) String() string {
	switch e {
	case EscalationGraceful:
		return "graceful"
	case EscalationRepeated:
		return "repeated"
	case EscalationForced:
		return "forced"
	default:
		return "unknown"
	}
}

// Token is a cancellation flag shared between the signal handler and the scheduler.
// The zero value is not usable; create one with NewToken.
type Token struct {
	mu            sync.Mutex
	cancelled     bool
	done          chan struct{}
	lastInterrupt time.Time

	window      time.Duration
	gracePeriod time.Duration
	now         func() time.Time
	exit        func(code int)
	log         *logrus.Entry
}

// Option configures a Token
type Option func(*Token)

// WithEscalationWindow overrides DefaultEscalationWindow.
func WithEscalationWindow(d time.Duration) Option {
	return func(t *Token) { t.window = d }
}

// WithGracePeriod forces an exit if the process is still running d after the first
// interrupt. Zero (the default) waits indefinitely.
func WithGracePeriod(d time.Duration) Option {
	return func(t *Token) { t.gracePeriod = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Token) { t.now = now }
}

// WithExit replaces os.Exit, for tests.
func WithExit(exit func(code int)) Option {
	return func(t *Token) { t.exit = exit }
}

// NewToken creates an uncancelled Token
func NewToken(log *logrus.Entry, opts ...Option) *Token {
	t := &Token{
		done:   make(chan struct{}),
		window: DefaultEscalationWindow,
		now:    time.Now,
		exit:   os.Exit,
		log:    log.WithField("component", "shutdown"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Request asks the run to stop. It reports whether this call set the flag.
func (t *Token) Request() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	close(t.done)
	return true
}

// Cancelled reports whether cancellation has been requested
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel closed on cancellation. A Reset installs a new channel,
// so callers should fetch it per run.
func (t *Token) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Reset clears the flag and the interrupt history at the start of a run.
func (t *Token) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		t.done = make(chan struct{})
	}
	t.cancelled = false
	t.lastInterrupt = time.Time{}
}

// Context derives a context from parent that is also cancelled when the token is.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := t.Done()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Interrupt records one user interrupt. The first requests graceful cancellation; a second
// within the escalation window calls the exit function with status 1, skipping cleanup.
func (t *Token) Interrupt() Escalation {
	t.mu.Lock()
	now := t.now()
	first := t.lastInterrupt.IsZero()
	withinWindow := !first && now.Sub(t.lastInterrupt) <= t.window
	t.lastInterrupt = now
	t.mu.Unlock()

	if withinWindow {
		t.log.Warn("Second interrupt received, forcing exit")
		t.exit(1)
		return EscalationForced
	}

	t.Request()
	if first {
		t.log.Warnf("Interrupt received, finishing current URL (interrupt again within %v to force exit)", t.window)
		return EscalationGraceful
	}
	t.log.Warn("Interrupt received, shutdown already in progress")
	return EscalationRepeated
}

// Watch turns signals into Interrupt calls until ctx is done or signals is closed.
func (t *Token) Watch(ctx context.Context, signals <-chan os.Signal) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Errorf("PANIC in signal handler: %v", r)
		}
	}()

	var (
		graceTimer *time.Timer
		grace      <-chan time.Time
	)
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			t.log.WithField("signal", sig.String()).Debug("Signal received")
			if t.Interrupt() == EscalationGraceful && t.gracePeriod > 0 && grace == nil {
				graceTimer = time.NewTimer(t.gracePeriod)
				grace = graceTimer.C
			}
		case <-grace:
			t.log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			t.exit(1)
			return
		}
	}
}

// Notify installs SIGINT/SIGTERM handling for the token. Call stop to uninstall it.
func (t *Token) Notify(ctx context.Context) (stop func()) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	watchCtx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		t.Watch(watchCtx, sigChan)
	}()

	return func() {
		signal.Stop(sigChan)
		cancel()
		<-finished
	}
}
