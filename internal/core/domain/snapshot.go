package domain

// Snapshot is the full dataset as exchanged with the remote mirror.
type Snapshot struct {
	Items        []InventoryItem `json:"items"`
	Suppliers    []Supplier      `json:"suppliers"`
	Users        []UserAccount   `json:"users"`
	Transactions []Transaction   `json:"transactions"`
}

// Clone returns a deep copy so callers can hand the snapshot to another
// goroutine without sharing backing arrays.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Items:        append([]InventoryItem(nil), s.Items...),
		Suppliers:    append([]Supplier(nil), s.Suppliers...),
		Users:        append([]UserAccount(nil), s.Users...),
		Transactions: append([]Transaction(nil), s.Transactions...),
	}
}
