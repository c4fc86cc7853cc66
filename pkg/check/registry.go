package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kylerisse/funcdoctor/pkg/rule"
)

// Registry maps rule kinds to their handlers.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[rule.Kind]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[rule.Kind]Handler),
	}
}

// Register adds a handler for kind.
// Returns an error if kind is not a schema kind or is already registered.
func (r *Registry) Register(kind rule.Kind, h Handler) error {
	if !kind.Known() {
		return fmt.Errorf("check: unknown kind %q", kind)
	}
	if h == nil {
		return fmt.Errorf("check: nil handler for %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("check: kind %q is already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []rule.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]rule.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (r *Registry) lookup(kind rule.Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Handle evaluates rl with its registered handler. Every failure inside the
// evaluation is converted to a Result; the returned error is non-nil only
// when ctx was canceled or its deadline passed.
func (r *Registry) Handle(ctx context.Context, rl rule.Rule, t Target) (Result, error) {
	logger := t.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
		t.Logger = logger
	}

	start := time.Now()
	res, err := r.handle(ctx, rl, t)
	if err != nil {
		return Result{}, err
	}

	fields := logrus.Fields{
		"rule":     rl.ID,
		"type":     rl.Type,
		"status":   res.Status,
		"duration": time.Since(start),
	}
	if res.Status == StatusError {
		logger.WithFields(fields).Warnf("check error: %s", res.Detail)
	} else {
		logger.WithFields(fields).Debug("check finished")
	}
	return res, nil
}

func (r *Registry) handle(ctx context.Context, rl rule.Rule, t Target) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if rl.Type == "" {
		return Fail("Rule is missing a check type"), nil
	}
	h, ok := r.lookup(rl.Type)
	if !ok {
		return Fail("Unknown check type: %s", rl.Type), nil
	}
	if err := rl.Err(); err != nil {
		return Classify(err), nil
	}
	cond := rl.Condition
	if cond == nil {
		cond = rule.EmptyCondition(rl.Type)
	}
	if cond != nil {
		if err := cond.Validate(); err != nil {
			return Classify(err), nil
		}
	}

	res, err := call(ctx, h, rl, t)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return Result{}, err
	}
	t.Logger.WithFields(logrus.Fields{"rule": rl.ID, "type": rl.Type}).Debugf("handler error: %v", err)
	return Classify(err), nil
}

// call runs h, converting a panic into an ErrPanic error.
func call(ctx context.Context, h Handler, rl rule.Rule, t Target) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return h(ctx, rl, t)
}
