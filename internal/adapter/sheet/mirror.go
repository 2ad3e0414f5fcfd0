package sheet

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/labstock/internal/core/domain"
)

const (
	replySuccess = "SUCCESS"
	replyReady   = "READY"
	maxPostBytes = 32 << 20
)

// Mirror serves a workbook over the same contract as the deployed
// spreadsheet script: POST replaces the data sheets, GET ?action=getData
// returns items, suppliers and users as header-keyed objects, and any
// other GET answers READY.
type Mirror struct {
	book   *Workbook
	logger *zap.Logger
	now    func() time.Time
}

func NewMirror(book *Workbook, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{book: book, logger: logger, now: time.Now}
}

func (m *Mirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		m.handlePost(w, r)
	case http.MethodGet:
		m.handleGet(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Failures are reported in the body with a 200 status, as the script does.
func (m *Mirror) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPostBytes))
	if err != nil {
		m.fail(w, err)
		return
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		m.fail(w, err)
		return
	}

	if err := m.book.Apply(snap, m.now()); err != nil {
		m.fail(w, err)
		return
	}

	m.logger.Info("mirror updated",
		zap.Int("items", len(snap.Items)),
		zap.Int("suppliers", len(snap.Suppliers)),
		zap.Int("users", len(snap.Users)),
		zap.Int("transactions", len(snap.Transactions)),
	)
	writeText(w, replySuccess)
}

func (m *Mirror) fail(w http.ResponseWriter, err error) {
	m.logger.Warn("mirror update failed", zap.Error(err))
	if logErr := m.book.LogFailure(err.Error(), m.now()); logErr != nil {
		m.logger.Error("mirror log write failed", zap.Error(logErr))
	}
	writeText(w, "ERROR: "+err.Error())
}

func (m *Mirror) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") != "getData" {
		writeText(w, replyReady)
		return
	}

	doc := make(map[string][]map[string]string, 3)
	for key, sheet := range map[string]string{"items": SheetInventory, "suppliers": SheetSuppliers, "users": SheetUsers} {
		objs, err := m.book.Objects(sheet)
		if err != nil {
			m.logger.Warn("mirror read failed", zap.String("sheet", sheet), zap.Error(err))
			http.Error(w, "read failed", http.StatusInternalServerError)
			return
		}
		doc[key] = objs
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(doc)
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, text)
}
