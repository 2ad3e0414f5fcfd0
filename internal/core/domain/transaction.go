package domain

// DateLayout is the calendar date format used for transaction dates,
// expiry dates and lastUpdated stamps.
const DateLayout = "2006-01-02"

type TransactionType string

const (
	TransactionIn  TransactionType = "IN"
	TransactionOut TransactionType = "OUT"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIn || t == TransactionOut
}

// Transaction is an immutable stock movement. ItemName, LotNumber and
// Supplier are copied at creation time and are not kept in step with
// later catalog or supplier edits.
type Transaction struct {
	ID          string          `json:"id"`
	ItemID      string          `json:"itemId"`
	ItemName    string          `json:"itemName,omitempty"`
	LotNumber   string          `json:"lotNumber,omitempty"`
	Type        TransactionType `json:"type"`
	Quantity    int             `json:"quantity"`
	Unit        string          `json:"unit"`
	Date        string          `json:"date"`
	Supplier    string          `json:"supplier,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Requester   string          `json:"requester,omitempty"`
}

// Delta is the signed stock change requested by the transaction.
func (t Transaction) Delta() int {
	if t.Type == TransactionIn {
		return t.Quantity
	}
	return -t.Quantity
}
