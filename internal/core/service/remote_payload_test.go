package service

import (
	"errors"
	"testing"
)

func TestDecodeRemoteCatalog_SheetHeaders(t *testing.T) {
	body := `{"items":[{"id":"A1","sku":"S-1","namabarang":"Reagen A","kategori":"Reagen",
		"satuan":"BOX","stok":"12","minstok":3,"lot":"L-9","expiry":"2026-12-31T17:00:00.000Z",
		"updateterakhir":"2026-03-01"}],"users":[]}`

	items, ok, err := decodeRemoteCatalog([]byte(body))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !ok || len(items) != 1 {
		t.Fatalf("expected one item, got ok=%v items=%v", ok, items)
	}

	it := items[0]
	if it.Name != "Reagen A" || it.Category != "Reagen" || it.Unit != "BOX" || it.LotNumber != "L-9" {
		t.Errorf("aliases not mapped: %+v", it)
	}
	if it.Stock != 12 || it.MinStock != 3 {
		t.Errorf("expected stock 12 min 3, got %d %d", it.Stock, it.MinStock)
	}
	if it.ExpiryDate != "2026-12-31" {
		t.Errorf("expected expiry trimmed to date, got %s", it.ExpiryDate)
	}
}

func TestDecodeRemoteCatalog_Defaults(t *testing.T) {
	items, _, err := decodeRemoteCatalog([]byte(`{"items":[{"id":7,"name":"X"}]}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if items[0].ID != "7" || items[0].Stock != 0 || items[0].Unit != "" {
		t.Errorf("unexpected defaults: %+v", items[0])
	}
}

func TestDecodeRemoteCatalog_NoItems(t *testing.T) {
	items, ok, err := decodeRemoteCatalog([]byte(`{"suppliers":[]}`))
	if err != nil || ok || items != nil {
		t.Errorf("expected no items and no error, got %v %v %v", items, ok, err)
	}
}

func TestDecodeRemoteCatalog_Rejects(t *testing.T) {
	bodies := map[string]string{
		"not json":        `<html>error</html>`,
		"array document":  `[1,2]`,
		"null document":   `null`,
		"items object":    `{"items":{"id":"A"}}`,
		"missing id":      `{"items":[{"name":"X"}]}`,
		"negative stock":  `{"items":[{"id":"A","stock":-1}]}`,
		"fractional":      `{"items":[{"id":"A","stock":1.5}]}`,
		"word stock":      `{"items":[{"id":"A","stok":"banyak"}]}`,
		"item not object": `{"items":["A"]}`,
		"nested value":    `{"items":[{"id":{"x":1}}]}`,
	}

	for name, body := range bodies {
		_, _, err := decodeRemoteCatalog([]byte(body))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", name, err)
		}
	}
}

func TestIsReadinessMarker(t *testing.T) {
	for _, body := range []string{"READY", "  READY: script online", "Sistem Inventaris aktif"} {
		if !isReadinessMarker([]byte(body)) {
			t.Errorf("expected %q to be a readiness marker", body)
		}
	}
	if isReadinessMarker([]byte(`{"items":[]}`)) {
		t.Error("json body treated as readiness marker")
	}
}
