package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/labstock/internal/core/domain"
)

var ErrMalformedPayload = errors.New("malformed remote payload")

// readinessPrefixes mark a plain-text "endpoint alive" reply with no data.
var readinessPrefixes = []string{"READY", "Sistem"}

func isReadinessMarker(body []byte) bool {
	text := strings.TrimSpace(string(body))
	for _, p := range readinessPrefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// itemFieldAliases maps normalized keys (lower case, no spaces or
// underscores) onto item fields. The mirror derives keys from its sheet
// headers, so both the JSON names and the header-derived names occur.
var itemFieldAliases = map[string]string{
	"id":             "id",
	"sku":            "sku",
	"name":           "name",
	"namabarang":     "name",
	"category":       "category",
	"kategori":       "category",
	"unit":           "unit",
	"satuan":         "unit",
	"stock":          "stock",
	"stok":           "stock",
	"minstock":       "minStock",
	"minstok":        "minStock",
	"lotnumber":      "lotNumber",
	"lot":            "lotNumber",
	"expirydate":     "expiryDate",
	"expiry":         "expiryDate",
	"lastupdated":    "lastUpdated",
	"updateterakhir": "lastUpdated",
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
}

// decodeRemoteCatalog parses a getData response. hasItems is false when the
// document is valid but carries no items collection. Any shape outside the
// schema fails the whole document; nothing is partially recovered.
func decodeRemoteCatalog(body []byte) (items []domain.InventoryItem, hasItems bool, err error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc == nil {
		return nil, false, fmt.Errorf("%w: document is null", ErrMalformedPayload)
	}

	raw, ok := doc["items"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false, nil
	}

	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false, fmt.Errorf("%w: items: %v", ErrMalformedPayload, err)
	}

	items = make([]domain.InventoryItem, 0, len(rows))
	for i, row := range rows {
		item, err := decodeRemoteItem(row)
		if err != nil {
			return nil, false, fmt.Errorf("%w: items[%d]: %v", ErrMalformedPayload, i, err)
		}
		items = append(items, item)
	}
	return items, true, nil
}

func decodeRemoteItem(row map[string]json.RawMessage) (domain.InventoryItem, error) {
	if row == nil {
		return domain.InventoryItem{}, errors.New("not an object")
	}

	fields := make(map[string]json.RawMessage, len(row))
	for k, v := range row {
		if field, ok := itemFieldAliases[normalizeKey(k)]; ok {
			fields[field] = v
		}
	}

	var (
		item domain.InventoryItem
		err  error
	)
	text := func(name string) string {
		if err != nil {
			return ""
		}
		var s string
		s, err = flexString(fields[name])
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return s
	}
	number := func(name string) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = flexInt(fields[name])
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return n
	}

	item.ID = text("id")
	item.SKU = text("sku")
	item.Name = text("name")
	item.Category = text("category")
	item.Unit = text("unit")
	item.Stock = number("stock")
	item.MinStock = number("minStock")
	item.LotNumber = text("lotNumber")
	item.ExpiryDate = calendarDate(text("expiryDate"))
	item.LastUpdated = calendarDate(text("lastUpdated"))
	if err != nil {
		return domain.InventoryItem{}, err
	}

	if item.ID == "" {
		return domain.InventoryItem{}, errors.New("missing id")
	}
	if item.Stock < 0 {
		return domain.InventoryItem{}, fmt.Errorf("negative stock %d", item.Stock)
	}
	return item, nil
}

// flexString accepts a JSON string, number or bool; a missing or null
// value defaults to "".
func flexString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unexpected %T", v)
	}
}

// flexInt accepts an integral JSON number or a numeric string; a missing,
// null or empty value defaults to 0.
func flexInt(raw json.RawMessage) (int, error) {
	s, err := flexString(raw)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// calendarDate trims a full timestamp, as spreadsheet date cells come
// back, down to its date part.
func calendarDate(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(domain.DateLayout)
	}
	return s
}
