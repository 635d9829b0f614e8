package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ShopFront/internal/api"
	"ShopFront/internal/cart"
	"ShopFront/internal/catalog"
	"ShopFront/internal/query"
	"ShopFront/internal/storage"
)

var fixtures = []catalog.Item{
	{ID: 1, Title: "Keyboard", Price: 49.9, Description: "mechanical", Images: []string{"http://img/kb.png"}},
	{ID: 2, Title: "Mouse", Price: 19.9},
	{ID: 3, Title: "Monitor", Price: 199},
}

// newCatalogTS fakes the remote catalog service.
func newCatalogTS(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		title := r.URL.Query().Get("title")
		out := []catalog.Item{}
		for _, it := range fixtures {
			if title == "" || strings.Contains(strings.ToLower(it.Title), strings.ToLower(title)) {
				out = append(out, it)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.PathValue("id"))
		for _, it := range fixtures {
			if it.ID == id {
				_ = json.NewEncoder(w).Encode(it)
				return
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// testApp is one "process": an API server plus its cart bridge.
// Stopping it flushes the cart to kv, like a clean app shutdown.
type testApp struct {
	URL    string
	ts     *httptest.Server
	bridge *cart.Bridge
}

func (a *testApp) stop() {
	a.ts.Close()
	a.bridge.Close()
}

func newAPITS(t *testing.T, kv storage.Store) *testApp {
	t.Helper()

	catalogTS := newCatalogTS(t)

	store := cart.NewStore()
	bridge := cart.NewBridge(t.Context(), kv, store, zap.NewNop())

	s := &api.Server{
		Cache: query.NewCache(catalog.NewClient(catalogTS.URL), zap.NewNop(), nil),
		Cart:  store,
		KV:    kv,
		Log:   zap.NewNop(),
	}

	h := api.NewHandler(s, api.HTTPDeps{
		Log:     zap.NewNop(),
		Service: "shopfront",
	})

	app := &testApp{ts: httptest.NewServer(h), bridge: bridge}
	app.URL = app.ts.URL
	t.Cleanup(app.stop)
	return app
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

type cartView struct {
	Lines         []cart.Line `json:"lines"`
	TotalPrice    float64     `json:"total_price"`
	TotalQuantity int         `json:"total_quantity"`
}

func decodeCart(t *testing.T, raw []byte) cartView {
	t.Helper()
	var v cartView
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode cart: %v (%s)", err, raw)
	}
	return v
}

func TestListItems(t *testing.T) {
	app := newAPITS(t, storage.NewMemStore())

	resp, raw := doJSON(t, http.MethodGet, app.URL+"/items?offset=0&limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}

	var items []catalog.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
}

func TestListItemsSorted(t *testing.T) {
	app := newAPITS(t, storage.NewMemStore())

	_, raw := doJSON(t, http.MethodGet, app.URL+"/items?sort=price_desc", nil)

	var items []catalog.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if items[0].ID != 3 || items[2].ID != 2 {
		t.Fatalf("not sorted by price desc: %+v", items)
	}
}

func TestListItemsFiltered(t *testing.T) {
	app := newAPITS(t, storage.NewMemStore())

	_, raw := doJSON(t, http.MethodGet, app.URL+"/items?title=mo", nil)

	var items []catalog.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 { // Mouse, Monitor
		t.Fatalf("want 2 filtered items, got %d: %+v", len(items), items)
	}
}

func TestGetItem(t *testing.T) {
	app := newAPITS(t, storage.NewMemStore())

	resp, raw := doJSON(t, http.MethodGet, app.URL+"/items/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}

	var it catalog.Item
	if err := json.Unmarshal(raw, &it); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if it.Title != "Keyboard" {
		t.Fatalf("unexpected item: %+v", it)
	}

	resp, _ = doJSON(t, http.MethodGet, app.URL+"/items/999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing item: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, app.URL+"/items/zero", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", resp.StatusCode)
	}
}

func TestCartFlow(t *testing.T) {
	app := newAPITS(t, storage.NewMemStore())

	add := func(id int) cartView {
		resp, raw := doJSON(t, http.MethodPost, app.URL+"/cart/items", map[string]int{"id": id})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add %d: status %d: %s", id, resp.StatusCode, raw)
		}
		return decodeCart(t, raw)
	}

	add(1)
	v := add(1)
	if len(v.Lines) != 1 || v.Lines[0].Quantity != 2 {
		t.Fatalf("after double add: %+v", v)
	}

	v = add(2)
	if v.TotalQuantity != 3 {
		t.Fatalf("total quantity: %d", v.TotalQuantity)
	}

	_, raw := doJSON(t, http.MethodPost, app.URL+"/cart/items/1/decrease", nil)
	v = decodeCart(t, raw)
	if v.Lines[0].Quantity != 1 {
		t.Fatalf("after decrease: %+v", v)
	}

	_, raw = doJSON(t, http.MethodPost, app.URL+"/cart/items/1/decrease", nil)
	v = decodeCart(t, raw)
	if len(v.Lines) != 1 || v.Lines[0].Item.ID != 2 {
		t.Fatalf("decrease at quantity 1 must drop the line: %+v", v)
	}

	resp, raw := doJSON(t, http.MethodDelete, app.URL+"/cart", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear: status %d", resp.StatusCode)
	}
	if v = decodeCart(t, raw); len(v.Lines) != 0 {
		t.Fatalf("cart not empty after clear: %+v", v)
	}
}

func TestAddUnknownItem(t *testing.T) {
	app := newAPITS(t, storage.NewMemStore())

	resp, _ := doJSON(t, http.MethodPost, app.URL+"/cart/items", map[string]int{"id": 999})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}

	_, raw := doJSON(t, http.MethodGet, app.URL+"/cart", nil)
	if v := decodeCart(t, raw); len(v.Lines) != 0 {
		t.Fatalf("failed add must not touch the cart: %+v", v)
	}
}

func TestItemRefreshRecoversFromTransientError(t *testing.T) {
	var mu sync.Mutex
	failing := true

	catalogTS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		f := failing
		mu.Unlock()
		if f {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(fixtures[0])
	}))
	defer catalogTS.Close()

	s := &api.Server{
		Cache: query.NewCache(catalog.NewClient(catalogTS.URL), zap.NewNop(), nil),
		Cart:  cart.NewStore(),
		KV:    storage.NewMemStore(),
		Log:   zap.NewNop(),
	}
	ts := httptest.NewServer(api.NewHandler(s, api.HTTPDeps{Log: zap.NewNop(), Service: "shopfront"}))
	defer ts.Close()

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/items/1", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("failing catalog: status %d", resp.StatusCode)
	}

	// the error is a settled slot: plain GETs keep serving it
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/items/1", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("cached error: status %d", resp.StatusCode)
	}

	mu.Lock()
	failing = false
	mu.Unlock()

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/items/1/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status %d: %s", resp.StatusCode, raw)
	}

	var it catalog.Item
	if err := json.Unmarshal(raw, &it); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if it.ID != 1 {
		t.Fatalf("unexpected item after refresh: %+v", it)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/items/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("slot not recovered: status %d", resp.StatusCode)
	}
}

func TestCartSurvivesRestart(t *testing.T) {
	kv := storage.NewMemStore()

	app := newAPITS(t, kv)
	doJSON(t, http.MethodPost, app.URL+"/cart/items", map[string]int{"id": 1})
	doJSON(t, http.MethodPost, app.URL+"/cart/items", map[string]int{"id": 1})
	app.stop()

	// a second "process" over the same storage hydrates the same cart
	app2 := newAPITS(t, kv)
	_, raw := doJSON(t, http.MethodGet, app2.URL+"/cart", nil)
	v := decodeCart(t, raw)
	if len(v.Lines) != 1 || v.Lines[0].Quantity != 2 {
		t.Fatalf("cart lost across restart: %+v", v)
	}
}

func TestMetricsEndpointGated(t *testing.T) {
	catalogTS := newCatalogTS(t)

	s := &api.Server{
		Cache: query.NewCache(catalog.NewClient(catalogTS.URL), zap.NewNop(), nil),
		Cart:  cart.NewStore(),
		KV:    storage.NewMemStore(),
		Log:   zap.NewNop(),
	}

	h := api.NewHandler(s, api.HTTPDeps{
		Log:            zap.NewNop(),
		Service:        "shopfront",
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: true,
		MetricsToken:   "sekrit",
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unauthenticated metrics: status %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("authenticated metrics: status %d", authed.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	catalogTS := newCatalogTS(t)

	s := &api.Server{
		Cache: query.NewCache(catalog.NewClient(catalogTS.URL), zap.NewNop(), nil),
		Cart:  cart.NewStore(),
		KV:    storage.NewMemStore(),
		Log:   zap.NewNop(),
	}

	h := api.NewHandler(s, api.HTTPDeps{
		Log:             zap.NewNop(),
		Service:         "shopfront",
		RateLimit:       3,
		RateLimitWindow: time.Minute,
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	var last int
	for i := 0; i < 4; i++ {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("fourth request: status %d", last)
	}
}
