// Package hooks contains the post-commit side effects wired into the
// economy engine. None of them can affect a committed money movement.
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/example/economy-ledger/internal/economy"
	"github.com/example/economy-ledger/pkg/audit"
)

// AuditRecord is the payload written to the audit chain.
type AuditRecord struct {
	TransactionID  int64                 `json:"transaction_id"`
	Reference      string                `json:"reference"`
	Kind           economy.Kind          `json:"kind"`
	Amount         int64                 `json:"amount"`
	Currency       string                `json:"currency"`
	SrcAccountID   *int64                `json:"src_account_id,omitempty"`
	DestAccountID  *int64                `json:"dest_account_id,omitempty"`
	OwnerID        int64                 `json:"owner_id"`
	CounterpartyID int64                 `json:"counterparty_id,omitempty"`
	Entries        []economy.LedgerEntry `json:"entries"`
}

// Audit appends every committed transaction to a hash-chained log.
type Audit struct {
	Chain *audit.ChainLogger
}

func (Audit) Name() string { return "audit" }

func (h Audit) AfterCommit(_ context.Context, ev economy.Event) error {
	t := ev.Transaction
	_, err := h.Chain.Append(AuditRecord{
		TransactionID:  t.ID,
		Reference:      t.Reference,
		Kind:           t.Kind,
		Amount:         t.Amount,
		Currency:       t.Currency,
		SrcAccountID:   t.SrcAccountID,
		DestAccountID:  t.DestAccountID,
		OwnerID:        ev.OwnerID,
		CounterpartyID: ev.CounterpartyID,
		Entries:        ev.Entries,
	})
	return err
}

// Publisher delivers committed events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, ev economy.Event) error
}

// Publish forwards events to a Publisher, bounded by Timeout when set.
type Publish struct {
	Publisher Publisher
	Timeout   time.Duration
}

func (Publish) Name() string { return "publish" }

func (h Publish) AfterCommit(ctx context.Context, ev economy.Event) error {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	return h.Publisher.Publish(ctx, ev)
}

// ExperienceGranter awards experience points to an owner.
type ExperienceGranter interface {
	GrantExperience(ctx context.Context, ownerID int64, points int) error
}

// NewcomerBonus grants Points of experience to the recipient of a transfer
// whose balance before the transfer was at most MaxBalance.
type NewcomerBonus struct {
	Granter    ExperienceGranter
	MaxBalance int64
	Points     int
}

func (NewcomerBonus) Name() string { return "newcomer_bonus" }

func (h NewcomerBonus) AfterCommit(ctx context.Context, ev economy.Event) error {
	t := ev.Transaction
	if t.Kind != economy.KindTransfer || t.DestAccountID == nil || ev.CounterpartyID == 0 {
		return nil
	}
	for _, e := range ev.Entries {
		if e.AccountID != *t.DestAccountID {
			continue
		}
		if e.BalanceAfter-e.Delta > h.MaxBalance {
			return nil
		}
		if err := h.Granter.GrantExperience(ctx, ev.CounterpartyID, h.Points); err != nil {
			return fmt.Errorf("grant newcomer bonus to %d: %w", ev.CounterpartyID, err)
		}
		return nil
	}
	return nil
}
