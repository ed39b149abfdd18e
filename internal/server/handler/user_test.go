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

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/service"
)

// fakeUserStore implements domain.UserStore over maps.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]domain.User)}
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByDiscordID(_ context.Context, discordID string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.DiscordUserID == discordID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUserStore) LinkDiscord(_ context.Context, userID, discordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.DiscordUserID = discordID
	f.users[userID] = u
	return nil
}

func (f *fakeUserStore) GetConfig(context.Context, string) (domain.UserConfig, error) {
	return domain.UserConfig{}, nil
}

func newUserHandler(t *testing.T) (*UserHandler, *fakeUserStore) {
	t.Helper()
	store := newFakeUserStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUserHandler(service.NewUserService(store, logger), logger), store
}

func TestGetDiscordIDResponseShape(t *testing.T) {
	h, store := newUserHandler(t)
	store.users["u1"] = domain.User{ID: "u1", Username: "ada", DiscordUserID: "disc-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/{id}/discord", h.GetDiscordID)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/discord", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["discord_user_id"] != "disc-1" {
		t.Errorf("discord_user_id = %q, want disc-1 (body %s)", resp["discord_user_id"], rec.Body)
	}
	if resp["user_id"] != "u1" {
		t.Errorf("user_id = %q, want u1", resp["user_id"])
	}
}

func TestGetByDiscordIDResponseShape(t *testing.T) {
	h, store := newUserHandler(t)
	store.users["u1"] = domain.User{ID: "u1", Username: "ada", DiscordUserID: "disc-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/by-discord/{discordId}", h.GetByDiscordID)

	req := httptest.NewRequest(http.MethodGet, "/api/users/by-discord/disc-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["user_id"] != "u1" {
		t.Errorf("user_id = %q, want u1 (body %s)", resp["user_id"], rec.Body)
	}
}

func TestLinkDiscordAcceptsSnakeCaseBody(t *testing.T) {
	h, store := newUserHandler(t)
	store.users["u1"] = domain.User{ID: "u1", Username: "ada"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/link-discord", h.LinkDiscord)

	req := httptest.NewRequest(http.MethodPost, "/api/users/link-discord",
		strings.NewReader(`{"user_id":"u1","discord_user_id":"disc-9"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	u, _ := store.GetByID(context.Background(), "u1")
	if u.DiscordUserID != "disc-9" {
		t.Errorf("linked discord id = %q, want disc-9", u.DiscordUserID)
	}
}
