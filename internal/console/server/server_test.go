package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/latch-escrow/internal/console/handler"
	"github.com/xela07ax/latch-escrow/internal/console/service"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/engine"
	"github.com/xela07ax/latch-escrow/internal/infra/auth"
	"github.com/xela07ax/latch-escrow/internal/ledger"
	"github.com/xela07ax/latch-escrow/internal/policy"
	"github.com/xela07ax/latch-escrow/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const wallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWith(t, nil, nil)
}

func newTestServerWith(t *testing.T, limiter *rate.Limiter, archive *service.AuditService) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	ctrl := engine.NewController(store.NewMemoryStore(), ledger.New(), policy.NewEngine(), logger, engine.Options{})
	srv := NewConsoleServer(logger, nil, limiter, Handlers{
		Vaults:    handler.NewVaultHandler(ctrl, logger),
		Activity:  handler.NewActivityHandler(ctrl, archive),
		Dashboard: handler.NewDashboardHandler(ctrl),
		Roles:     handler.NewRoleHandler(ctrl),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, role domain.Role, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if role != "" {
		req.Header.Set(auth.RoleHeader, string(role))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 && resp.StatusCode != http.StatusNoContent {
		var raw any
		if err := json.NewDecoder(resp.Body).Decode(&raw); err == nil {
			if m, ok := raw.(map[string]any); ok {
				out = m
			} else {
				out = map[string]any{"list": raw}
			}
		}
	}
	return resp, out
}

func TestVaultLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, ts, http.MethodPost, "/v1/vaults", domain.RoleCreator,
		map[string]any{"amount": 1.5, "counterparty": wallet, "memo": "invoice 421"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	id := body["vault"].(map[string]any)["id"].(string)

	resp, body = do(t, ts, http.MethodPost, "/v1/vaults/"+id+"/fund", domain.RoleCounterparty, nil)
	if resp.StatusCode != http.StatusForbidden || body["error"] != "Only the Creator can fund a vault." {
		t.Fatalf("fund as counterparty: %d %v", resp.StatusCode, body)
	}
	if entry := body["entry"].(map[string]any); entry["message"] != "✖ Only the Creator can fund a vault." {
		t.Fatalf("entry = %v", entry)
	}

	if resp, _ = do(t, ts, http.MethodPost, "/v1/vaults/"+id+"/fund", domain.RoleCreator, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("fund: %d", resp.StatusCode)
	}

	resp, body = do(t, ts, http.MethodGet, "/v1/vaults?status=funded&q=421", "", nil)
	if resp.StatusCode != http.StatusOK || len(body["list"].([]any)) != 1 {
		t.Fatalf("list: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, ts, http.MethodGet, "/v1/stats", "", nil)
	if resp.StatusCode != http.StatusOK || body["locked_pct"].(float64) != 100 {
		t.Fatalf("stats: %v", body)
	}

	resp, body = do(t, ts, http.MethodDelete, "/v1/vaults/"+id, domain.RoleCreator, nil)
	if resp.StatusCode != http.StatusForbidden || body["error"] != "Funded vaults cannot be deleted." {
		t.Fatalf("delete funded: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, ts, http.MethodPost, "/v1/vaults/"+id+"/export", domain.RoleArbitrator, nil)
	if resp.StatusCode != http.StatusOK || body["type"] != "vault" || body["roleContext"] != "arbitrator" {
		t.Fatalf("export: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, ts, http.MethodGet, "/v1/activity", "", nil)
	if resp.StatusCode != http.StatusOK || len(body["list"].([]any)) != 5 {
		t.Fatalf("activity: %v", body)
	}
	// журнал отдается в порядке добавления
	list := body["list"].([]any)
	first, last := list[0].(map[string]any)["message"].(string), list[4].(map[string]any)["message"].(string)
	if !strings.HasPrefix(first, "✓ Draft created") || !strings.HasPrefix(last, "⇣ Exported vault JSON") {
		t.Fatalf("activity order: first %q, last %q", first, last)
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, ts, http.MethodPost, "/v1/vaults", domain.RoleCreator, map[string]any{"amount": "abc", "counterparty": wallet})
	if resp.StatusCode != http.StatusUnprocessableEntity || body["error"] != "Enter a valid Amount (SOL)." {
		t.Fatalf("invalid amount: %d %v", resp.StatusCode, body)
	}
	if resp, _ = do(t, ts, http.MethodPost, "/v1/vaults/vault_missing/fund", domain.RoleCreator, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing vault: %d", resp.StatusCode)
	}
	if resp, _ = do(t, ts, http.MethodGet, "/v1/vaults/vault_missing", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get missing: %d", resp.StatusCode)
	}
	if resp, _ = do(t, ts, http.MethodGet, "/v1/vaults?sort=sideways", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad sort: %d", resp.StatusCode)
	}
	if resp, _ = do(t, ts, http.MethodGet, "/v1/stats", "root", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad role header: %d", resp.StatusCode)
	}
	if resp, _ = do(t, ts, http.MethodGet, "/v1/activity/archive", "", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("archive without postgres: %d", resp.StatusCode)
	}
}

func TestRoleSelectionAndReset(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, ts, http.MethodPut, "/v1/role", "", map[string]string{"role": "counterparty"})
	if resp.StatusCode != http.StatusOK || body["label"] != "Counterparty" {
		t.Fatalf("put role: %d %v", resp.StatusCode, body)
	}
	// без заголовка действует выбранная роль
	if resp, _ = do(t, ts, http.MethodPost, "/v1/vaults", "", map[string]any{"amount": "1", "counterparty": wallet}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("create with selected counterparty role: %d", resp.StatusCode)
	}
	if resp, _ = do(t, ts, http.MethodPut, "/v1/role", "", map[string]string{"role": "root"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad role: %d", resp.StatusCode)
	}

	if resp, _ = do(t, ts, http.MethodPost, "/v1/admin/reset", "", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset: %d", resp.StatusCode)
	}
	resp, body = do(t, ts, http.MethodGet, "/v1/activity", "", nil)
	if resp.StatusCode != http.StatusOK || len(body["list"].([]any)) != 0 {
		t.Fatalf("activity after reset: %v", body)
	}

	if resp, _ = do(t, ts, http.MethodPut, "/v1/role", "", map[string]string{"role": "arbitrator"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("put role: %d", resp.StatusCode)
	}
	resp, body = do(t, ts, http.MethodGet, "/v1/activity", "", nil)
	entries := body["list"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["message"] != "⇢ Role switched: Arbitrator" {
		t.Fatalf("activity after role switch: %v", body)
	}
	if resp, _ = do(t, ts, http.MethodPost, "/v1/admin/reset", "", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset: %d", resp.StatusCode)
	}

	resp, body = do(t, ts, http.MethodPost, "/v1/activity/export", "", nil)
	if resp.StatusCode != http.StatusOK || body["type"] != "activity_log" {
		t.Fatalf("activity export: %v", body)
	}
	if events, ok := body["events"].([]any); !ok || len(events) != 0 {
		t.Fatalf("events = %v", body["events"])
	}
}

func TestExportsAreRateLimited(t *testing.T) {
	ts := newTestServerWith(t, rate.NewLimiter(0, 1), nil)

	if resp, _ := do(t, ts, http.MethodPost, "/v1/activity/export", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("first export: %d", resp.StatusCode)
	}
	if resp, _ := do(t, ts, http.MethodPost, "/v1/activity/export", "", nil); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second export: %d, want 429", resp.StatusCode)
	}
	// чтение журнала лимитом не ограничено и видит ровно одну запись экспорта
	resp, body := do(t, ts, http.MethodGet, "/v1/activity", "", nil)
	if resp.StatusCode != http.StatusOK || len(body["list"].([]any)) != 1 {
		t.Fatalf("activity: %v", body)
	}
	if resp, _ := do(t, ts, http.MethodGet, "/v1/activity/export", "", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET export: %d, want 405", resp.StatusCode)
	}
}

type stubArchive struct {
	cursors []domain.ActivityCursor
	entries []domain.ActivityEntry
}

func (s *stubArchive) FetchHistory(_ context.Context, cur domain.ActivityCursor, limit int) ([]domain.ActivityEntry, error) {
	s.cursors = append(s.cursors, cur)
	if cur.Before != 0 {
		return nil, nil
	}
	return s.entries, nil
}

func TestArchivePaging(t *testing.T) {
	stub := &stubArchive{entries: []domain.ActivityEntry{
		{ID: "a_3", Timestamp: 200, Message: "✖ Vault is not Funded."},
		{ID: "a_2", Timestamp: 200, Message: "⇢ Funded (locked)"},
	}}
	ts := newTestServerWith(t, nil, service.NewAuditService(stub))

	resp, body := do(t, ts, http.MethodGet, "/v1/activity/archive?limit=2", "", nil)
	if resp.StatusCode != http.StatusOK || len(body["entries"].([]any)) != 2 {
		t.Fatalf("first page: %d %v", resp.StatusCode, body)
	}
	next := body["next"].(map[string]any)
	if next["before"].(float64) != 200 || next["before_id"] != "a_2" {
		t.Fatalf("next = %v", next)
	}

	resp, body = do(t, ts, http.MethodGet, "/v1/activity/archive?before=200&before_id=a_2&limit=2", "", nil)
	if resp.StatusCode != http.StatusOK || len(body["entries"].([]any)) != 0 || body["next"] != nil {
		t.Fatalf("last page: %d %v", resp.StatusCode, body)
	}
	if got := stub.cursors[1]; got != (domain.ActivityCursor{Before: 200, BeforeID: "a_2"}) {
		t.Fatalf("cursor = %+v", got)
	}

	if resp, _ = do(t, ts, http.MethodGet, "/v1/activity/archive?before=yesterday", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor: %d", resp.StatusCode)
	}
}

type loginUsers map[string]*domain.User

func (u loginUsers) GetUserByUsername(_ context.Context, name string) (*domain.User, error) {
	if name == "down" {
		return nil, errors.New("connection refused")
	}
	return u[name], nil
}

func TestLogin(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := service.HashPassword("s3cret", 4)
	if err != nil {
		t.Fatal(err)
	}
	users := loginUsers{"ann": {ID: "u-1", Username: "ann", PasswordHash: hash, Role: domain.RoleCreator}}
	logger := zap.NewNop()
	ctrl := engine.NewController(store.NewMemoryStore(), ledger.New(), policy.NewEngine(), logger, engine.Options{})
	srv := NewConsoleServer(logger, auth.NewBaseValidator(&key.PublicKey), nil, Handlers{
		Auth:      handler.NewAuthHandler(service.NewAuthService(users, key, time.Hour), logger),
		Vaults:    handler.NewVaultHandler(ctrl, logger),
		Activity:  handler.NewActivityHandler(ctrl, nil),
		Dashboard: handler.NewDashboardHandler(ctrl),
		Roles:     handler.NewRoleHandler(ctrl),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cases := []struct {
		name string
		body any
		code int
		err  string
	}{
		{"ok", map[string]string{"username": "ann", "password": "s3cret"}, http.StatusOK, ""},
		{"wrong password", map[string]string{"username": "ann", "password": "nope"}, http.StatusUnauthorized, "invalid credentials"},
		{"unknown user", map[string]string{"username": "bob", "password": "s3cret"}, http.StatusUnauthorized, "invalid credentials"},
		{"missing fields", map[string]string{"username": " "}, http.StatusBadRequest, "username and password are required"},
		{"store down", map[string]string{"username": "down", "password": "x"}, http.StatusInternalServerError, "could not issue token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, ts, http.MethodPost, "/auth/token", "", tc.body)
			if resp.StatusCode != tc.code {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tc.code, body)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %q", ct)
			}
			if tc.err != "" {
				if body["error"] != tc.err {
					t.Errorf("error = %v, want %q", body["error"], tc.err)
				}
				return
			}
			if body["token_type"] != "Bearer" || body["role"] != "creator" || body["access_token"] == "" {
				t.Errorf("token response = %v", body)
			}
		})
	}
}
