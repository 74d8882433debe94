package gate

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// PageAdapter gates the document.cookie surface of an embedded JavaScript
// runtime. Install defines an accessor pair on the document object so page
// scripts keep using the platform API while every set routes through the
// gate. Reads always reflect the allowed cookie set.
type PageAdapter struct {
	vm *goja.Runtime

	mu      sync.RWMutex
	gate    *Gate
	cookies map[string]string
}

var _ Adapter = (*PageAdapter)(nil)

// NewPageAdapter attaches to a runtime. The runtime must only be driven
// from a single goroutine, per goja's own rules; the adapter's internal
// state is still locked so sweeps from other goroutines are safe.
func NewPageAdapter(vm *goja.Runtime) *PageAdapter {
	return &PageAdapter{
		vm:      vm,
		cookies: make(map[string]string),
	}
}

func (a *PageAdapter) Name() string { return "document.cookie" }

// Install defines the accessor on document, creating the document object if
// the runtime does not have one yet.
func (a *PageAdapter) Install(g *Gate) error {
	a.mu.Lock()
	a.gate = g
	a.mu.Unlock()

	document := a.vm.Get("document")
	var doc *goja.Object
	if document == nil || goja.IsUndefined(document) || goja.IsNull(document) {
		doc = a.vm.NewObject()
		if err := a.vm.Set("document", doc); err != nil {
			return fmt.Errorf("failed to create document object: %w", err)
		}
	} else {
		doc = document.ToObject(a.vm)
	}

	getter := a.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return a.vm.ToValue(a.cookieString())
	})
	setter := a.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			a.set(call.Arguments[0].String())
		}
		return goja.Undefined()
	})

	if err := doc.DefineAccessorProperty("cookie", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("failed to define cookie accessor: %w", err)
	}
	return nil
}

func (a *PageAdapter) Uninstall() {
	a.mu.Lock()
	a.gate = nil
	a.mu.Unlock()
}

// set handles one document.cookie assignment.
func (a *PageAdapter) set(raw string) {
	a.mu.RLock()
	g := a.gate
	a.mu.RUnlock()

	if g != nil && !g.Write(raw) {
		return
	}

	id, err := schemas.ParseSetCookie(raw)
	if err != nil {
		return
	}
	value := ""
	if eq := strings.Index(raw, "="); eq >= 0 {
		segment := raw[eq+1:]
		if semi := strings.Index(segment, ";"); semi >= 0 {
			segment = segment[:semi]
		}
		value = strings.TrimSpace(segment)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if isExpiredWrite(raw) {
		delete(a.cookies, id.Name)
		return
	}
	a.cookies[id.Name] = value
}

// cookieString renders the live cookies the way document.cookie does.
func (a *PageAdapter) cookieString() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.cookies))
	for name := range a.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+a.cookies[name])
	}
	return strings.Join(pairs, "; ")
}

// Names lists the cookies currently present, for the deletion sweeper.
func (a *PageAdapter) Names() []schemas.Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]schemas.Identity, 0, len(a.cookies))
	for name := range a.cookies {
		ids = append(ids, schemas.Identity{Name: name, Path: "/"})
	}
	return ids
}

// Delete applies a deletion write directly, bypassing the gate. Deletions
// are always permitted.
func (a *PageAdapter) Delete(raw string) {
	id, err := schemas.ParseSetCookie(raw)
	if err != nil {
		return
	}
	a.mu.Lock()
	delete(a.cookies, id.Name)
	a.mu.Unlock()
}

func isExpiredWrite(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "max-age=0") ||
		strings.Contains(lower, "expires=thu, 01 jan 1970")
}
