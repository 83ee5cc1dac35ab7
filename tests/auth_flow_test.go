package tests

import (
	"net/http"
	"testing"
)

func TestLoginSessionAndCSRF(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t, "admin@acme.test", "correct horse battery")

	c := newAPIClient(t, env.server.URL)

	// wrong password is a 401 with no cookies
	resp := c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "admin@acme.test", "password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", resp.StatusCode)
	}

	c.login("admin@acme.test", "correct horse battery")
	if c.csrf == "" {
		t.Fatalf("login did not hand out a csrf token")
	}

	// the session cookie now authenticates reads
	resp = c.do(http.MethodGet, "/api/auth/me", nil)
	var me struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: %d", resp.StatusCode)
	}
	decodeBody(t, resp, &me)
	if me.User.Email != "admin@acme.test" || me.User.Role != "admin" {
		t.Fatalf("me payload: %+v", me)
	}

	// a state-changing call without the CSRF header is refused
	saved := c.csrf
	c.csrf = ""
	resp = c.do(http.MethodPost, "/api/reviewees", map[string]string{"name": "Eve"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("missing csrf: %d", resp.StatusCode)
	}
	c.csrf = saved

	resp = c.do(http.MethodPost, "/api/reviewees", map[string]string{"name": "Eve"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create with csrf: %d", resp.StatusCode)
	}

	// logout invalidates the session server-side
	resp = c.do(http.MethodPost, "/api/auth/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
	resp = c.do(http.MethodGet, "/api/auth/me", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout: %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t, "admin@acme.test", "correct horse battery")

	c := newAPIClient(t, env.server.URL)
	for _, path := range []string{"/api/reviewees", "/api/cycles", "/api/questionnaires", "/api/org"} {
		resp := c.do(http.MethodGet, path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without session: %d", path, resp.StatusCode)
		}
	}

	// health stays open
	resp := c.do(http.MethodGet, "/healthz", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
}

func TestLandingPagesMountedUnderPrefix(t *testing.T) {
	env := newTestEnv(t)
	c := newAPIClient(t, env.server.URL)

	resp := c.do(http.MethodGet, "/landing/", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("landing index: %d", resp.StatusCode)
	}
	resp = c.do(http.MethodGet, "/landing/privacy", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("landing privacy: %d", resp.StatusCode)
	}
}
