package domain

// Seed data used on first run, before anything has been persisted.

func SeedItems() []InventoryItem {
	return []InventoryItem{
		{
			ID:          "itm-reagent-hba1c",
			SKU:         "RG-HBA1C-01",
			Name:        "Reagen HbA1c",
			Category:    "Reagen",
			Unit:        "BOX",
			Stock:       12,
			MinStock:    5,
			LotNumber:   "LOT-2401",
			ExpiryDate:  "2026-12-31",
			LastUpdated: "2026-01-02",
		},
		{
			ID:          "itm-tube-edta",
			SKU:         "TB-EDTA-3ML",
			Name:        "Tabung EDTA 3ml",
			Category:    "BMHP",
			Unit:        "PCS",
			Stock:       300,
			MinStock:    100,
			LotNumber:   "LOT-ED-77",
			ExpiryDate:  "2027-06-30",
			LastUpdated: "2026-01-02",
		},
		{
			ID:          "itm-glove-m",
			SKU:         "GL-NIT-M",
			Name:        "Sarung Tangan Nitril M",
			Category:    "APD",
			Unit:        "BOX",
			Stock:       4,
			MinStock:    10,
			LotNumber:   "LOT-GL-09",
			ExpiryDate:  "2028-01-31",
			LastUpdated: "2026-01-02",
		},
	}
}

func SeedUsers() []UserAccount {
	return []UserAccount{
		{ID: "usr-admin", Username: "admin", Password: "1234", FullName: "Administrator", Role: RoleAdmin, Room: RoomWarehouse},
		{ID: "usr-staff", Username: "staff", Password: "1111", FullName: "Staf Gudang", Role: RoleStaff, Room: RoomWarehouse},
	}
}

func SeedSuppliers() []Supplier {
	return []Supplier{
		{ID: "sup-medika", Name: "PT Medika Jaya", Contact: "021-5550101", Address: "Jakarta"},
		{ID: "sup-labindo", Name: "CV Labindo", Contact: "022-5550202", Address: "Bandung"},
	}
}
