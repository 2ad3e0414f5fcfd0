package domain

type InventoryItem struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Unit        string `json:"unit"`
	Stock       int    `json:"stock"` // never negative
	MinStock    int    `json:"minStock"`
	LotNumber   string `json:"lotNumber"`
	ExpiryDate  string `json:"expiryDate"`
	LastUpdated string `json:"lastUpdated"`
}

// IsLowStock reports whether the item sits at or below its reorder threshold.
func (i InventoryItem) IsLowStock() bool {
	return i.Stock <= i.MinStock
}
