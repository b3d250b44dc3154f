package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds one expression evaluation
const DefaultTimeout = time.Second

// Runtime evaluates expression bindings in a goja VM
type Runtime struct {
	vm      *goja.Runtime
	timeout time.Duration
	mu      sync.Mutex
}

// NewRuntime creates a runtime with the given evaluation timeout
func NewRuntime(timeout time.Duration) *Runtime {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Runtime{vm: goja.New(), timeout: timeout}
	r.setupGlobals()
	return r
}

// Eval runs src and exports its value. undefined and null export as nil.
func (r *Runtime) Eval(ctx context.Context, src string) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	done := make(chan struct{})
	watcher := make(chan struct{})

	go func() {
		defer close(watcher)
		select {
		case <-timer.C:
			r.vm.Interrupt("expression timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	val, err := r.vm.RunString(src)
	// no Interrupt may land after the flag is cleared
	close(done)
	<-watcher
	r.vm.ClearInterrupt()
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", src, err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// setupGlobals removes globals expressions have no business with
func (r *Runtime) setupGlobals() {
	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("module", goja.Undefined())
	r.vm.Set("exports", goja.Undefined())
}
