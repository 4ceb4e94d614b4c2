package liquid

import (
	"fmt"
	"log/slog"
)

// Filter is one template filter implementation
type Filter interface {
	Name() string
	Apply(input any, args []any) (any, error)
}

type filterFunc struct {
	name string
	fn   func(input any, args []any) (any, error)
}

func (f filterFunc) Name() string { return f.name }

func (f filterFunc) Apply(input any, args []any) (any, error) { return f.fn(input, args) }

// NewFilter adapts a function to the Filter interface
func NewFilter(name string, fn func(input any, args []any) (any, error)) Filter {
	return filterFunc{name: name, fn: fn}
}

type fallbackFilter struct {
	primary  Filter
	fallback Filter
	logger   *slog.Logger
}

// WithFallback decorates primary so that an error or panic falls through
// to fallback
func WithFallback(primary, fallback Filter, logger *slog.Logger) Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackFilter{primary: primary, fallback: fallback, logger: logger}
}

func (f *fallbackFilter) Name() string { return f.primary.Name() }

func (f *fallbackFilter) Apply(input any, args []any) (any, error) {
	out, err := safeApply(f.primary, input, args)
	if err == nil {
		return out, nil
	}
	f.logger.Debug("filter fell back",
		slog.String("filter", f.primary.Name()),
		slog.String("error", err.Error()),
	)
	return f.fallback.Apply(input, args)
}

func safeApply(f Filter, input any, args []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("filter %s panicked: %v", f.Name(), r)
		}
	}()
	return f.Apply(input, args)
}

// register exposes f to templates. Up to four positional arguments are
// passed through; trailing missing ones are dropped.
func (e *Engine) register(f Filter) {
	e.eng.RegisterFilter(f.Name(), func(input, a1, a2, a3, a4 any) (any, error) {
		args := []any{a1, a2, a3, a4}
		for len(args) > 0 && args[len(args)-1] == nil {
			args = args[:len(args)-1]
		}
		return f.Apply(input, args)
	})
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}
