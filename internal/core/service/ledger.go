package service

import "github.com/rl1809/labstock/internal/core/domain"

// LedgerResult is the outcome of applying one or more movements. Items and
// Transactions are always freshly allocated; the inputs are never modified.
type LedgerResult struct {
	Items        []domain.InventoryItem
	Transactions []domain.Transaction
	Unmatched    []string // item ids that did not resolve to a catalog entry
}

func (r LedgerResult) Applied() bool {
	return len(r.Unmatched) == 0
}

// ApplyTransaction moves stock for tx.ItemID and prepends tx to the log.
// Outbound movements are clamped so stock never drops below zero; the
// recorded quantity is left as requested. A transaction for an unknown
// item still lands in the log, with the catalog returned unchanged.
func ApplyTransaction(items []domain.InventoryItem, log []domain.Transaction, tx domain.Transaction) LedgerResult {
	next := make([]domain.InventoryItem, len(items))
	copy(next, items)

	matched := false
	for i := range next {
		if next[i].ID != tx.ItemID {
			continue
		}
		next[i].Stock = max(0, next[i].Stock+tx.Delta())
		next[i].LastUpdated = tx.Date
		matched = true
	}

	entries := make([]domain.Transaction, 0, len(log)+1)
	entries = append(entries, tx)
	entries = append(entries, log...)

	result := LedgerResult{Items: next, Transactions: entries}
	if !matched {
		result.Unmatched = []string{tx.ItemID}
	}
	return result
}

// ApplyTransactions applies txs in order, as a single combined result.
func ApplyTransactions(items []domain.InventoryItem, log []domain.Transaction, txs []domain.Transaction) LedgerResult {
	result := LedgerResult{Items: items, Transactions: log}
	if len(txs) == 0 {
		result.Items = append([]domain.InventoryItem(nil), items...)
		result.Transactions = append([]domain.Transaction(nil), log...)
		return result
	}

	var unmatched []string
	for _, tx := range txs {
		result = ApplyTransaction(result.Items, result.Transactions, tx)
		unmatched = append(unmatched, result.Unmatched...)
	}
	result.Unmatched = unmatched
	return result
}
