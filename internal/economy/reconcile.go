package economy

import (
	"context"
	"fmt"
	"time"
)

// ValidationResult is the outcome of one invariant check.
type ValidationResult struct {
	IsValid        bool                   `json:"is_valid"`
	ValidationType string                 `json:"validation_type"`
	Message        string                 `json:"message"`
	AccountID      int64                  `json:"account_id,omitempty"`
	TransactionID  int64                  `json:"transaction_id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// Reconcile replays the account's ledger entries in creation order and
// checks that their running sum matches every balance_after snapshot and
// the current balance.
func (e *Engine) Reconcile(ctx context.Context, ownerID int64, currency string) (*ValidationResult, error) {
	acct, err := e.GetAccount(ctx, ownerID, currency)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.ListEntries(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	result := &ValidationResult{
		ValidationType: "balance_reconciliation",
		AccountID:      acct.ID,
		Timestamp:      e.now(),
	}

	var sum int64
	for _, entry := range entries {
		sum += entry.Delta
		if entry.BalanceAfter != sum {
			result.Message = fmt.Sprintf("entry %d records balance %d, running sum is %d", entry.ID, entry.BalanceAfter, sum)
			result.Details = map[string]interface{}{
				"entry_id":      entry.ID,
				"balance_after": entry.BalanceAfter,
				"running_sum":   sum,
			}
			return result, nil
		}
	}

	result.Details = map[string]interface{}{
		"balance":    acct.Balance,
		"ledger_sum": sum,
		"entries":    len(entries),
	}
	if sum != acct.Balance {
		result.Message = fmt.Sprintf("balance drift: account holds %d, ledger sums to %d", acct.Balance, sum)
		result.Details["drift"] = acct.Balance - sum
		return result, nil
	}

	result.IsValid = true
	result.Message = fmt.Sprintf("balance %d matches %d ledger entries", sum, len(entries))
	return result, nil
}

// ValidateTransaction checks the entry shape of one transaction: transfers
// have two entries summing to zero on the recorded accounts, every other
// kind has exactly one.
func (e *Engine) ValidateTransaction(ctx context.Context, id int64) (*ValidationResult, error) {
	t, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.ListEntriesByTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	result := &ValidationResult{
		ValidationType: "entry_shape",
		TransactionID:  id,
		Timestamp:      e.now(),
		Details: map[string]interface{}{
			"kind":    t.Kind,
			"entries": len(entries),
		},
	}

	if t.Kind == KindTransfer {
		if t.SrcAccountID == nil || t.DestAccountID == nil {
			result.Message = "transfer is missing a source or destination account"
			return result, nil
		}
		if len(entries) != 2 {
			result.Message = fmt.Sprintf("transfer has %d entries, want 2", len(entries))
			return result, nil
		}
		byAccount := map[int64]int64{}
		var sum int64
		for _, entry := range entries {
			byAccount[entry.AccountID] = entry.Delta
			sum += entry.Delta
		}
		if sum != 0 {
			result.Message = fmt.Sprintf("transfer entries sum to %d", sum)
			return result, nil
		}
		if byAccount[*t.SrcAccountID] != -t.Amount || byAccount[*t.DestAccountID] != t.Amount {
			result.Message = "transfer entries do not match source and destination"
			return result, nil
		}
	} else {
		if len(entries) != 1 {
			result.Message = fmt.Sprintf("%s has %d entries, want 1", t.Kind, len(entries))
			return result, nil
		}
		delta := entries[0].Delta
		if delta != t.Amount && delta != -t.Amount {
			result.Message = fmt.Sprintf("entry delta %d does not match amount %d", delta, t.Amount)
			return result, nil
		}
	}

	result.IsValid = true
	result.Message = fmt.Sprintf("%s transaction is balanced", t.Kind)
	return result, nil
}
