// Package tests holds cross-cutting flows that exercise the composed
// application: auth and CSRF through the real router, the review lifecycle
// down to report generation, and the token-authenticated integration API.
package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"blik/api"
	"blik/config"
	"blik/core/appbootstrap"
	"blik/core/auth"
	"blik/core/mail"
	"blik/core/store"
	"blik/core/utils"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		DBPath:        filepath.Join(t.TempDir(), "blik.db"),
		CSRFKey:       "test-csrf-key",
		Pepper:        "test-pepper",
		EncryptionKey: "test-encryption-key",
		Landing: config.LandingConfig{
			SiteName:   "Blik360",
			SiteDomain: "blik360.test",
			MainAppURL: "https://app.blik360.test",
		},
	}
}

type testEnv struct {
	cfg     *config.AppConfig
	db      *sql.DB
	runtime *appbootstrap.Runtime
	server  *httptest.Server
	mailbox *recordingSender
}

// recordingSender replaces SMTP in tests; it keeps every message so flows
// can assert on recipients and subjects.
type recordingSender struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (r *recordingSender) Send(ctx context.Context, org *store.Organization, msg *mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *recordingSender) all() []mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mail.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	runtime, err := appbootstrap.Compose(cfg, db, logger)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	env := &testEnv{cfg: cfg, db: db, runtime: runtime, mailbox: &recordingSender{}}

	// swap the SMTP sender for the in-memory recorder
	runtime.ServerDeps.Mailer = env.mailbox
	srv := api.NewServer(cfg, runtime.ServerDeps, logger)
	env.server = httptest.NewServer(srv.Routes())
	t.Cleanup(env.server.Close)
	return env
}

// seedAdmin creates an organization and an active admin user, returning
// both for direct store access in assertions.
func (e *testEnv) seedAdmin(t *testing.T, email, password string) (*store.Organization, *store.User) {
	t.Helper()
	ctx := context.Background()
	orgID, err := e.runtime.ServerDeps.Orgs.Create(ctx, &store.Organization{
		Name: "Acme", Slug: "acme", MinResponsesForAnonymity: 2, Active: true,
	})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	org, err := e.runtime.ServerDeps.Orgs.GetByID(ctx, orgID)
	if err != nil || org == nil {
		t.Fatalf("load org: %v", err)
	}
	ph := auth.MustHashPassword(password, e.cfg.Pepper)
	userID, err := e.runtime.ServerDeps.Users.Create(ctx, &store.User{
		OrgID:        orgID,
		Email:        email,
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		DisplayName:  "Admin",
		Role:         store.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	user, err := e.runtime.ServerDeps.Users.GetByID(ctx, userID)
	if err != nil || user == nil {
		t.Fatalf("load user: %v", err)
	}
	return org, user
}

// apiClient is a cookie-jar HTTP client that carries the CSRF token the
// way a browser frontend would.
type apiClient struct {
	t       *testing.T
	base    string
	client  *http.Client
	cookies []*http.Cookie
	csrf    string
}

func newAPIClient(t *testing.T, base string) *apiClient {
	return &apiClient{t: t, base: base, client: &http.Client{}}
}

func (c *apiClient) do(method, path string, payload any) *http.Response {
	c.t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if c.csrf != "" && method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		c.cookies = cookies
	}
	return resp
}

func (c *apiClient) login(email, password string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login: %d", resp.StatusCode)
	}
	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.t.Fatalf("login payload: %v", err)
	}
	c.csrf = out.CSRFToken
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
