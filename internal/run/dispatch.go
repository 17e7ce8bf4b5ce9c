package run

import (
	"log/slog"
	"sync"
)

// Dispatcher executes best-effort side writes (status mirrors, resets,
// overtime flushes) off the caller's path. Failures are logged and swallowed;
// a full queue drops the operation rather than blocking the run.
type Dispatcher struct {
	ops    chan op
	logger *slog.Logger
	wg     sync.WaitGroup

	closeOnce sync.Once
}

type op struct {
	name string
	fn   func() error
}

// NewDispatcher starts a dispatcher with the given queue depth.
func NewDispatcher(buffer int, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		ops:    make(chan op, buffer),
		logger: logger,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for o := range d.ops {
		if err := o.fn(); err != nil {
			d.logger.Warn("best-effort operation failed", "op", o.name, "error", err)
		}
	}
}

// Enqueue submits a best-effort operation. Never blocks.
func (d *Dispatcher) Enqueue(name string, fn func() error) {
	select {
	case d.ops <- op{name: name, fn: fn}:
	default:
		d.logger.Warn("dispatcher queue full, dropping operation", "op", name)
	}
}

// Close drains pending operations and stops the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.ops) })
	d.wg.Wait()
}
