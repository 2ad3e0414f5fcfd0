package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rl1809/labstock/internal/core/domain"
)

// Workbook holds the mirrored dataset as an XLSX file. Each applied
// snapshot rebuilds the data sheets; SISTEM_LOG only grows.
type Workbook struct {
	mu   sync.Mutex
	file *excelize.File
	path string
}

// OpenWorkbook loads path, or starts an empty workbook if it does not
// exist yet. An empty path keeps the workbook in memory only.
func OpenWorkbook(path string) (*Workbook, error) {
	if path == "" {
		return &Workbook{file: render(domain.Snapshot{}, nil)}, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		wb := &Workbook{file: render(domain.Snapshot{}, nil), path: path}
		return wb, wb.save()
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Workbook{file: f, path: path}, nil
}

// Apply replaces the four data sheets with snap and records the run in
// the log sheet.
func (w *Workbook) Apply(snap domain.Snapshot, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	logRows, err := w.file.GetRows(SheetLog)
	if err != nil {
		logRows = nil
	}
	logRows = append(trimHeader(logRows), []string{at.Format(time.RFC3339), "BERHASIL", "Sinkronisasi Seluruh Tabel Berhasil"})

	next := render(snap, logRows)
	old := w.file
	w.file = next
	if err := w.save(); err != nil {
		w.file = old
		_ = next.Close()
		return err
	}
	_ = old.Close()
	return nil
}

// LogFailure appends an error entry without touching the data sheets.
func (w *Workbook) LogFailure(message string, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.file.GetRows(SheetLog)
	if err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(1, max(len(rows), 1)+1)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(SheetLog, cell, &[]any{at.Format(time.RFC3339), "ERROR", message}); err != nil {
		return err
	}
	return w.save()
}

// Objects returns the rows of a sheet as header-keyed objects, the shape
// served by getData. A missing sheet yields an empty list.
func (w *Workbook) Objects(sheet string) ([]map[string]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := []map[string]string{}
	if idx, err := w.file.GetSheetIndex(sheet); err != nil || idx < 0 {
		return out, nil
	}

	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	if len(rows) <= 1 {
		return out, nil
	}

	keys := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		keys[i] = objectKey(h)
	}
	for _, row := range rows[1:] {
		obj := make(map[string]string, len(keys))
		for i, key := range keys {
			if i < len(row) {
				obj[key] = row[i]
			} else {
				obj[key] = ""
			}
		}
		out = append(out, obj)
	}
	return out, nil
}

func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *Workbook) save() error {
	if w.path == "" {
		return nil
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	return nil
}

// ExportWorkbook renders snap as a standalone XLSX document.
func ExportWorkbook(snap domain.Snapshot, at time.Time) ([]byte, error) {
	f := render(snap, [][]string{{at.Format(time.RFC3339), "EKSPOR", "Ekspor manual"}})
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func trimHeader(rows [][]string) [][]string {
	if len(rows) > 0 {
		return rows[1:]
	}
	return rows
}

// render builds a fresh workbook from snap. logRows are carried over
// below the log header.
func render(snap domain.Snapshot, logRows [][]string) *excelize.File {
	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(f.GetActiveSheetIndex())
	_ = f.SetSheetName(defaultSheet, SheetInventory)

	rows := make([][]any, 0, len(snap.Items))
	for _, it := range snap.Items {
		rows = append(rows, itemRow(it))
	}
	writeSheet(f, SheetInventory, inventoryHeader, rows)

	rows = make([][]any, 0, len(snap.Suppliers))
	for _, s := range snap.Suppliers {
		rows = append(rows, supplierRow(s))
	}
	writeSheet(f, SheetSuppliers, supplierHeader, rows)

	rows = make([][]any, 0, len(snap.Users))
	for _, u := range snap.Users {
		rows = append(rows, userRow(u))
	}
	writeSheet(f, SheetUsers, userHeader, rows)

	rows = make([][]any, 0, len(snap.Transactions))
	for _, t := range snap.Transactions {
		rows = append(rows, transactionRow(t))
	}
	writeSheet(f, SheetTransactions, transactionHeader, rows)

	rows = make([][]any, 0, len(logRows))
	for _, r := range logRows {
		row := make([]any, len(r))
		for i, v := range r {
			row[i] = v
		}
		rows = append(rows, row)
	}
	writeSheet(f, SheetLog, logHeader, rows)

	if idx, err := f.GetSheetIndex(SheetInventory); err == nil {
		f.SetActiveSheet(idx)
	}
	return f
}

func writeSheet(f *excelize.File, name string, header []string, rows [][]any) {
	if idx, _ := f.GetSheetIndex(name); idx < 0 {
		_, _ = f.NewSheet(name)
	}

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	_ = f.SetSheetRow(name, "A1", &head)

	if style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerColors[name]}},
	}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(name, "A1", last, style)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(name, cell, &row)
	}
}
