package gate

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/consent"
)

// epochExpiry is the conventional in-the-past expiry used for deletions.
const epochExpiry = "Thu, 01 Jan 1970 00:00:00 GMT"

// MinSweepInterval bounds the periodic sweep.
const MinSweepInterval = 5 * time.Second

// DeletionWrites builds the raw deletion strings for one cookie across the
// domain, path, and secure permutations a browser might have stored it
// under. Deletion is best-effort; writes against permutations that do not
// exist are harmless.
func DeletionWrites(name, host, currentPath string) []string {
	paths := []string{"/"}
	if p := strings.TrimSpace(currentPath); p != "" && p != "/" {
		paths = append(paths, p)
	}

	domains := []string{""}
	if host != "" {
		domains = append(domains, host)
		if !strings.HasPrefix(host, ".") {
			domains = append(domains, "."+host)
		}
	}

	var writes []string
	for _, path := range paths {
		for _, domain := range domains {
			for _, secure := range []string{"", "; secure"} {
				w := name + "=; expires=" + epochExpiry + "; max-age=0; path=" + path
				if domain != "" {
					w += "; domain=" + domain
				}
				w += secure
				writes = append(writes, w)
			}
		}
	}
	return writes
}

// Surface is what the sweeper needs from a cookie store: enumerate what is
// present and apply a deletion write. PageAdapter satisfies it.
type Surface interface {
	Names() []schemas.Identity
	Delete(raw string)
}

// Sweeper periodically deletes cookies already present on a surface that
// the current engine disallows. It is the backstop for writes the gate
// never saw.
type Sweeper struct {
	surface     Surface
	host        string
	currentPath string
	log         *zap.Logger

	mu     sync.RWMutex
	engine *consent.Engine

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper builds a sweeper over a surface. Interval zero disables the
// background loop; Sweep can still be called directly.
func NewSweeper(surface Surface, host, currentPath string, interval time.Duration, logger *zap.Logger) *Sweeper {
	s := &Sweeper{
		surface:     surface,
		host:        host,
		currentPath: currentPath,
		log:         logger.Named("sweeper"),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	if interval > 0 {
		if interval < MinSweepInterval {
			interval = MinSweepInterval
		}
		go s.loop(interval)
	} else {
		close(s.done)
	}
	return s
}

// Refresh swaps the engine the sweep evaluates against and runs a sweep
// immediately, so a preference change takes effect without waiting for the
// next tick.
func (s *Sweeper) Refresh(engine *consent.Engine) {
	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()
	s.Sweep()
}

// Sweep deletes every present cookie the engine blocks. Returns the number
// of cookies removed.
func (s *Sweeper) Sweep() int {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	if engine == nil || !engine.Restricted() {
		return 0
	}

	removed := 0
	for _, id := range s.surface.Names() {
		probe := id
		if probe.Domain == "" {
			probe.Domain = s.host
		}
		if !engine.ShouldBlock(probe) {
			continue
		}
		for _, write := range DeletionWrites(id.Name, s.host, s.currentPath) {
			s.surface.Delete(write)
		}
		removed++
		s.log.Debug("Swept disallowed cookie", zap.String("cookie", id.Name))
	}
	return removed
}

func (s *Sweeper) loop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Close stops the background loop.
func (s *Sweeper) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
