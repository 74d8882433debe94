// Package gate is the client-side enforcement point. Every first-party code
// path that writes a cookie calls Gate.Write explicitly; third-party
// surfaces are covered best-effort by adapters.
package gate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/consent"
)

// State reports whether the gate is currently enforcing.
type State int

const (
	// StateInactive passes all writes through.
	StateInactive State = iota
	// StateActive consults the engine on every write.
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "inactive"
}

// MinRecheckInterval bounds the safety-net ticker. Transitions are
// event-driven through Refresh; the ticker only catches missed events.
const MinRecheckInterval = 5 * time.Second

// EngineProvider returns a freshly built decision engine reflecting the
// current preferences.
type EngineProvider func(ctx context.Context) (*consent.Engine, error)

// Options configure a Gate.
type Options struct {
	// RecheckInterval is the safety-net re-evaluation period. Zero disables
	// the ticker; values below MinRecheckInterval are raised to it.
	RecheckInterval time.Duration
	// OnObserve, when set, is invoked for every write attempt with the
	// parsed identity and the verdict. Used to feed detection.
	OnObserve func(id schemas.Identity, blocked bool)
}

// Gate filters cookie writes against a consent engine. A gate with no
// engine, or an engine with nothing to restrict, is inactive and lets
// everything through.
type Gate struct {
	opts Options
	log  *zap.Logger

	mu       sync.RWMutex
	engine   *consent.Engine
	state    State
	adapters []Adapter

	provider EngineProvider
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a gate. The provider may be nil when all refreshes are pushed
// through Refresh.
func New(provider EngineProvider, opts Options, logger *zap.Logger) *Gate {
	if opts.RecheckInterval > 0 && opts.RecheckInterval < MinRecheckInterval {
		opts.RecheckInterval = MinRecheckInterval
	}
	g := &Gate{
		opts:     opts,
		log:      logger.Named("gate"),
		provider: provider,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if provider != nil && opts.RecheckInterval > 0 {
		go g.recheckLoop()
	} else {
		close(g.done)
	}
	return g
}

// State returns the gate's current enforcement state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Refresh swaps in a new engine and recomputes the state. Called whenever
// preferences change; the ticker calls it as a backstop.
func (g *Gate) Refresh(engine *consent.Engine) {
	g.mu.Lock()
	prev := g.state
	g.engine = engine
	if engine != nil && engine.Restricted() {
		g.state = StateActive
	} else {
		g.state = StateInactive
	}
	next := g.state
	g.mu.Unlock()

	if prev != next {
		g.log.Info("Gate state changed",
			zap.Stringer("from", prev), zap.Stringer("to", next))
	}
}

// Write evaluates one raw Set-Cookie style string. It returns true when the
// write may proceed. Blocked writes are dropped silently; malformed input
// is allowed through untouched.
func (g *Gate) Write(raw string) bool {
	g.mu.RLock()
	engine := g.engine
	state := g.state
	g.mu.RUnlock()

	id, err := schemas.ParseSetCookie(raw)
	if err != nil {
		return true
	}

	blocked := state == StateActive && engine.ShouldBlock(id)
	if g.opts.OnObserve != nil {
		g.opts.OnObserve(id, blocked)
	}
	if blocked {
		g.log.Debug("Cookie write blocked", zap.String("cookie", id.Name))
	}
	return !blocked
}

// Attach installs an adapter and tracks it for teardown.
func (g *Gate) Attach(a Adapter) error {
	if err := a.Install(g); err != nil {
		return err
	}
	g.mu.Lock()
	g.adapters = append(g.adapters, a)
	g.mu.Unlock()
	g.log.Debug("Adapter attached", zap.String("adapter", a.Name()))
	return nil
}

func (g *Gate) recheckLoop() {
	defer close(g.done)
	ticker := time.NewTicker(g.opts.RecheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			engine, err := g.provider(ctx)
			cancel()
			if err != nil {
				g.log.Warn("Safety-net refresh failed", zap.Error(err))
				continue
			}
			g.Refresh(engine)
		case <-g.stop:
			return
		}
	}
}

// Close stops the safety-net ticker and uninstalls all adapters.
func (g *Gate) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
	<-g.done

	g.mu.Lock()
	adapters := g.adapters
	g.adapters = nil
	g.mu.Unlock()
	for _, a := range adapters {
		a.Uninstall()
	}
}
