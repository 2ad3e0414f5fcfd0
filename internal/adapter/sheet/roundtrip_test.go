package sheet_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rl1809/labstock/internal/adapter/remote"
	"github.com/rl1809/labstock/internal/adapter/sheet"
	"github.com/rl1809/labstock/internal/core/domain"
	"github.com/rl1809/labstock/internal/core/service"
)

const endpoint = "https://script.google.com/macros/s/roundtrip/exec"

type memoryKV struct {
	data map[string][]byte
	mu   sync.Mutex
}

func (m *memoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKV) SetMulti(ctx context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.data[k] = v
	}
	return nil
}

func (m *memoryKV) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func newNode(t *testing.T, mirrorURL string) (*service.InventoryService, *service.SyncEngine) {
	t.Helper()
	ctx := context.Background()

	svc := service.NewInventoryService(service.NewLocalStore(&memoryKV{data: map[string][]byte{}}, ""), nil, service.InventoryOptions{})
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	transport, err := remote.NewRewriteTransport(mirrorURL, nil)
	if err != nil {
		t.Fatalf("transport failed: %v", err)
	}
	client := remote.NewHTTPClientWith(&http.Client{Transport: transport})

	engine := service.NewSyncEngine(client, svc, nil, service.SyncOptions{})
	svc.AttachSyncer(engine)
	if _, err := svc.SetEndpointURL(ctx, endpoint); err != nil {
		t.Fatalf("set endpoint failed: %v", err)
	}
	return svc, engine
}

func TestRoundTrip_PushThenPullRestoresItems(t *testing.T) {
	ctx := context.Background()
	book, err := sheet.OpenWorkbook("")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	srv := httptest.NewServer(sheet.NewMirror(book, nil))
	defer srv.Close()

	writer, writerEngine := newNode(t, srv.URL)
	if _, err := writer.RecordMovement(ctx, domain.Transaction{ItemID: "itm-glove-m", Type: domain.TransactionIn, Quantity: 16}); err != nil {
		t.Fatalf("movement failed: %v", err)
	}
	if _, err := writer.AddItem(ctx, domain.InventoryItem{ID: "new-1", Name: "Kuvet", Unit: "PCS", Stock: 40, MinStock: 10, ExpiryDate: "2027-01-31"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if outcome, err := writerEngine.Push(ctx, nil); err != nil || outcome != service.PushSent {
		t.Fatalf("push failed: %s %v", outcome, err)
	}

	reader, readerEngine := newNode(t, srv.URL)
	if outcome, err := readerEngine.Pull(ctx); err != nil || outcome != service.PullApplied {
		t.Fatalf("pull failed: %s %v", outcome, err)
	}

	want, got := writer.Items(), reader.Items()
	if !reflect.DeepEqual(want, got) {
		a, _ := json.Marshal(want)
		b, _ := json.Marshal(got)
		t.Errorf("catalog not restored:\nwant %s\ngot  %s", a, b)
	}
}
