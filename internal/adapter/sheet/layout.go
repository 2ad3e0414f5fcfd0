package sheet

import (
	"strings"
	"unicode"

	"github.com/rl1809/labstock/internal/core/domain"
)

const (
	SheetInventory    = "INVENTORY"
	SheetSuppliers    = "MASTER_SUPPLIER"
	SheetUsers        = "MASTER_USER"
	SheetTransactions = "TRANSAKSI_RIWAYAT"
	SheetLog          = "SISTEM_LOG"
)

var (
	inventoryHeader   = []string{"ID", "NAMA BARANG", "SKU", "LOT", "KATEGORI", "SATUAN", "STOK", "MIN STOK", "EXPIRY", "UPDATE TERAKHIR"}
	supplierHeader    = []string{"ID", "NAMA SUPPLIER", "KONTAK", "ALAMAT"}
	userHeader        = []string{"ID", "USERNAME", "NAMA LENGKAP", "ROLE", "RUANGAN"}
	transactionHeader = []string{"TANGGAL", "NAMA BARANG", "LOT", "TIPE", "QTY", "SATUAN", "TUJUAN/SUPPLIER", "PETUGAS"}
	logHeader         = []string{"WAKTU", "STATUS", "PESAN"}
)

// Header fill colours per sheet, RGB hex.
var headerColors = map[string]string{
	SheetInventory:    "1E40AF",
	SheetSuppliers:    "4F46E5",
	SheetUsers:        "0F172A",
	SheetTransactions: "334155",
	SheetLog:          "64748B",
}

func itemRow(it domain.InventoryItem) []any {
	return []any{it.ID, it.Name, it.SKU, it.LotNumber, it.Category, it.Unit, it.Stock, it.MinStock, it.ExpiryDate, it.LastUpdated}
}

func supplierRow(s domain.Supplier) []any {
	return []any{s.ID, s.Name, s.Contact, s.Address}
}

// Passwords are never written to the sheet.
func userRow(u domain.UserAccount) []any {
	return []any{u.ID, u.Username, u.FullName, string(u.Role), string(u.Room)}
}

func transactionRow(t domain.Transaction) []any {
	counterparty := "-"
	switch {
	case t.Destination != "":
		counterparty = t.Destination
	case t.Supplier != "":
		counterparty = t.Supplier
	}
	officer := t.Requester
	if officer == "" {
		officer = "Admin"
	}
	return []any{t.Date, t.ItemName, t.LotNumber, string(t.Type), t.Quantity, t.Unit, counterparty, officer}
}

// objectKey turns a sheet header into the key used in getData objects:
// lower case with all whitespace removed, plus the three name renames.
func objectKey(header string) string {
	key := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, header)

	switch key {
	case "namabarang", "namasupplier":
		return "name"
	case "namalengkap":
		return "fullName"
	}
	return key
}
