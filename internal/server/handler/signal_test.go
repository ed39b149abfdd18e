package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/service"
)

// fakeSignalStore implements domain.SignalStore over a map with mutex-held
// check-and-set transitions.
type fakeSignalStore struct {
	mu      sync.Mutex
	signals map[string]domain.TradeSignal
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{signals: make(map[string]domain.TradeSignal)}
}

func (f *fakeSignalStore) Create(_ context.Context, s domain.TradeSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals[s.ID] = s
	return nil
}

func (f *fakeSignalStore) GetByID(_ context.Context, id string) (domain.TradeSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.signals[id]
	if !ok {
		return domain.TradeSignal{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSignalStore) ListPending(_ context.Context, userID string) ([]domain.TradeSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TradeSignal
	for _, s := range f.signals {
		if s.UserID == userID && s.Status == domain.SignalStatusPending {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) ListHistory(_ context.Context, userID string, _ domain.ListOpts) ([]domain.TradeSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TradeSignal
	for _, s := range f.signals {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) set(id string, target domain.SignalStatus, d domain.Decision) (domain.TradeSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.signals[id]
	if !ok {
		return domain.TradeSignal{}, domain.ErrNotFound
	}
	if s.Status != domain.SignalStatusPending {
		return domain.TradeSignal{}, domain.ErrAlreadyProcessed
	}
	s.Status = target
	s.ConfirmedBy = d.ActorID
	s.ConfirmationSource = d.Source
	f.signals[id] = s
	return s, nil
}

func (f *fakeSignalStore) Confirm(_ context.Context, id string, d domain.Decision) (domain.TradeSignal, error) {
	return f.set(id, domain.SignalStatusConfirmed, d)
}

func (f *fakeSignalStore) Reject(_ context.Context, id string, d domain.Decision) (domain.TradeSignal, error) {
	return f.set(id, domain.SignalStatusRejected, d)
}

func (f *fakeSignalStore) Expire(_ context.Context, id string, _ time.Time) (domain.TradeSignal, error) {
	return f.set(id, domain.SignalStatusExpired, domain.Decision{})
}

func (f *fakeSignalStore) ExpireDue(context.Context, time.Time) ([]domain.TradeSignal, error) {
	return nil, nil
}

func (f *fakeSignalStore) ListTerminalSince(context.Context, time.Time, time.Time) ([]domain.TradeSignal, error) {
	return nil, nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, []byte) error { return nil }
func (nopBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func newSignalHandler(t *testing.T) (*SignalHandler, *fakeSignalStore) {
	t.Helper()
	store := newFakeSignalStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewSignalService(store, nopBus{}, nil, logger)
	return NewSignalHandler(svc, logger), store
}

func postJSON(t *testing.T, h http.HandlerFunc, method, path, pattern, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(method+" "+pattern, h)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func seedPending(store *fakeSignalStore, id, userID string) {
	store.Create(context.Background(), domain.TradeSignal{
		ID:        id,
		UserID:    userID,
		Symbol:    "TSLA",
		Status:    domain.SignalStatusPending,
		ExpiresAt: time.Now().Add(time.Minute),
		CreatedAt: time.Now(),
	})
}

func TestConfirmEndpointSuccess(t *testing.T) {
	h, store := newSignalHandler(t)
	seedPending(store, "s1", "u1")

	rec := postJSON(t, h.Confirm, http.MethodPost,
		"/api/signals/s1/confirm", "/api/signals/{id}/confirm",
		`{"user_id":"u1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Success bool               `json:"success"`
		Signal  domain.TradeSignal `json:"signal"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.Signal.Status != domain.SignalStatusConfirmed {
		t.Errorf("status = %s, want confirmed", resp.Signal.Status)
	}
}

func TestConfirmEndpointConflict(t *testing.T) {
	h, store := newSignalHandler(t)
	seedPending(store, "s1", "u1")

	first := postJSON(t, h.Confirm, http.MethodPost,
		"/api/signals/s1/confirm", "/api/signals/{id}/confirm",
		`{"user_id":"u1"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first confirm: %d", first.Code)
	}

	second := postJSON(t, h.Reject, http.MethodPost,
		"/api/signals/s1/reject", "/api/signals/{id}/reject",
		`{"user_id":"u1"}`)
	if second.Code != http.StatusConflict {
		t.Fatalf("second decision status = %d, want 409", second.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("conflict response carries success = true")
	}
	if resp.Error == "" {
		t.Error("conflict response missing error message")
	}
}

func TestConfirmEndpointNotFound(t *testing.T) {
	h, _ := newSignalHandler(t)

	rec := postJSON(t, h.Confirm, http.MethodPost,
		"/api/signals/ghost/confirm", "/api/signals/{id}/confirm",
		`{"user_id":"u1"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestConfirmEndpointValidation(t *testing.T) {
	h, store := newSignalHandler(t)
	seedPending(store, "s1", "u1")

	cases := []struct {
		name string
		body string
	}{
		{"missing user_id", `{}`},
		{"bad source", `{"user_id":"u1","source":"smoke-signal"}`},
		{"malformed body", `{not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h.Confirm, http.MethodPost,
				"/api/signals/s1/confirm", "/api/signals/{id}/confirm", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestListPendingEndpoint(t *testing.T) {
	h, store := newSignalHandler(t)
	seedPending(store, "s1", "u1")
	seedPending(store, "s2", "u2")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/signals/pending", h.ListPending)

	req := httptest.NewRequest(http.MethodGet, "/api/signals/pending?user_id=u1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Signals []domain.TradeSignal `json:"signals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Signals) != 1 || resp.Signals[0].ID != "s1" {
		t.Errorf("signals = %+v, want only s1", resp.Signals)
	}
}

func TestListPendingRequiresUser(t *testing.T) {
	h, _ := newSignalHandler(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/signals/pending", h.ListPending)

	req := httptest.NewRequest(http.MethodGet, "/api/signals/pending", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
