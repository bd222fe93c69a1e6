package economy

import (
	"context"
	"fmt"
)

// Event describes a committed money movement.
type Event struct {
	Transaction Transaction
	Entries     []LedgerEntry
	// OwnerID is the owner whose account the transaction was initiated for.
	OwnerID int64
	// CounterpartyID is the receiving owner of a transfer; zero otherwise.
	CounterpartyID int64
}

// Hook receives events after their atomic unit has committed. Errors and
// panics are logged and never change the financial outcome.
type Hook interface {
	Name() string
	AfterCommit(ctx context.Context, ev Event) error
}

// HookFunc adapts a function into a Hook.
type HookFunc struct {
	HookName string
	Fn       func(ctx context.Context, ev Event) error
}

func (h HookFunc) Name() string { return h.HookName }

func (h HookFunc) AfterCommit(ctx context.Context, ev Event) error {
	return h.Fn(ctx, ev)
}

func (e *Engine) afterCommit(ctx context.Context, ev Event) {
	for _, h := range e.hooks {
		e.runHook(ctx, h, ev)
	}
}

func (e *Engine) runHook(ctx context.Context, h Hook, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("post-commit hook panicked",
				"hook", h.Name(),
				"transaction_id", ev.Transaction.ID,
				"kind", ev.Transaction.Kind,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := h.AfterCommit(ctx, ev); err != nil {
		e.logger.Warn("post-commit hook failed",
			"hook", h.Name(),
			"transaction_id", ev.Transaction.ID,
			"kind", ev.Transaction.Kind,
			"error", err,
		)
	}
}
