package sheet

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rl1809/labstock/internal/core/domain"
)

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Items: []domain.InventoryItem{
			{ID: "A1", SKU: "S-1", Name: "Reagen A", Category: "Reagen", Unit: "BOX", Stock: 5, MinStock: 2, LotNumber: "L1", ExpiryDate: "2026-12-31", LastUpdated: "2026-03-10"},
		},
		Suppliers: []domain.Supplier{{ID: "S1", Name: "PT Medika", Contact: "021", Address: "Jakarta"}},
		Users:     []domain.UserAccount{{ID: "U1", Username: "admin", Password: "secret", FullName: "Admin", Role: domain.RoleAdmin, Room: domain.RoomWarehouse}},
		Transactions: []domain.Transaction{
			{ID: "T1", ItemID: "A1", ItemName: "Reagen A", Type: domain.TransactionOut, Quantity: 3, Unit: "BOX", Date: "2026-03-10"},
		},
	}
}

func newTestMirror(t *testing.T) (*Mirror, *Workbook) {
	t.Helper()
	book, err := OpenWorkbook("")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return NewMirror(book, nil), book
}

func post(t *testing.T, h http.Handler, body []byte) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMirror_PostThenGetData(t *testing.T) {
	mirror, _ := newTestMirror(t)

	body, _ := json.Marshal(testSnapshot())
	if got := post(t, mirror, body); got != "SUCCESS" {
		t.Fatalf("expected SUCCESS, got %q", got)
	}

	rec := httptest.NewRecorder()
	mirror.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exec?action=getData", nil))

	var doc map[string][]map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("getData not json: %v", err)
	}
	if len(doc["items"]) != 1 {
		t.Fatalf("expected one item, got %v", doc["items"])
	}
	item := doc["items"][0]
	if item["name"] != "Reagen A" || item["stok"] != "5" || item["minstok"] != "2" || item["lot"] != "L1" {
		t.Errorf("unexpected item object: %v", item)
	}
	if doc["suppliers"][0]["name"] != "PT Medika" {
		t.Errorf("unexpected supplier object: %v", doc["suppliers"][0])
	}
	user := doc["users"][0]
	if user["fullName"] != "Admin" {
		t.Errorf("unexpected user object: %v", user)
	}
	if _, ok := user["password"]; ok {
		t.Error("password leaked into the sheet")
	}
}

func TestMirror_GetWithoutAction(t *testing.T) {
	mirror, _ := newTestMirror(t)

	rec := httptest.NewRecorder()
	mirror.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exec", nil))

	if rec.Body.String() != "READY" {
		t.Errorf("expected READY, got %q", rec.Body.String())
	}
}

func TestMirror_EmptyWorkbookServesEmptyLists(t *testing.T) {
	mirror, _ := newTestMirror(t)

	rec := httptest.NewRecorder()
	mirror.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exec?action=getData", nil))

	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("expected empty items list, got %s", rec.Body.String())
	}
}

func TestMirror_BadPostLogsError(t *testing.T) {
	mirror, book := newTestMirror(t)

	got := post(t, mirror, []byte("not json"))
	if !strings.HasPrefix(got, "ERROR: ") {
		t.Fatalf("expected ERROR reply, got %q", got)
	}

	rows, err := book.file.GetRows(SheetLog)
	if err != nil {
		t.Fatalf("log sheet unreadable: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "ERROR" {
		t.Errorf("expected one error log row, got %v", rows)
	}
}

func TestMirror_TransactionSheetFallbacks(t *testing.T) {
	mirror, book := newTestMirror(t)

	body, _ := json.Marshal(testSnapshot())
	post(t, mirror, body)

	rows, err := book.file.GetRows(SheetTransactions)
	if err != nil {
		t.Fatalf("transaction sheet unreadable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %v", rows)
	}
	if rows[1][6] != "-" || rows[1][7] != "Admin" {
		t.Errorf("expected counterparty and officer fallbacks, got %v", rows[1])
	}
}

func TestWorkbook_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.xlsx")

	book, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := book.Apply(testSnapshot(), time.Now()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if err := book.Apply(testSnapshot(), time.Now()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	book.Close()

	reopened, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	items, err := reopened.Objects(SheetInventory)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected persisted item, got %v %v", items, err)
	}
	logRows, _ := reopened.file.GetRows(SheetLog)
	if len(logRows) != 3 {
		t.Errorf("expected log to keep both runs, got %d rows", len(logRows))
	}
}

func TestWorkbook_FailedSaveKeepsPreviousData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mirror")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	book, err := OpenWorkbook(filepath.Join(dir, "mirror.xlsx"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer book.Close()
	if err := book.Apply(testSnapshot(), time.Now()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	next := testSnapshot()
	next.Items[0].Name = "Unsaved"
	if err := book.Apply(next, time.Now()); err == nil {
		t.Fatal("expected save error")
	}

	items, err := book.Objects(SheetInventory)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected previous item, got %v %v", items, err)
	}
	if items[0]["name"] != "Reagen A" {
		t.Errorf("unsaved data served after failed save: %v", items[0])
	}
}

func TestExportWorkbook(t *testing.T) {
	data, err := ExportWorkbook(testSnapshot(), time.Now())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("export unreadable: %v", err)
	}
	defer f.Close()

	want := []string{SheetInventory, SheetSuppliers, SheetUsers, SheetTransactions, SheetLog}
	if got := f.GetSheetList(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected sheets %v", got)
	}
	rows, _ := f.GetRows(SheetInventory)
	if len(rows) != 2 || rows[1][1] != "Reagen A" {
		t.Errorf("unexpected inventory rows %v", rows)
	}
}
