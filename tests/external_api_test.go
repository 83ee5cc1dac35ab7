package tests

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"blik/core/store"
	"blik/core/utils"
)

func bearerGet(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func TestIntegrationAPITokenAuth(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.seedAdmin(t, "admin@acme.test", "correct horse battery")
	ctx := context.Background()

	if _, err := env.runtime.ServerDeps.Reviewees.Create(ctx, &store.Reviewee{
		OrgID: org.ID, Name: "Nora Berg", Email: "nora@acme.test", Active: true,
	}); err != nil {
		t.Fatalf("create reviewee: %v", err)
	}

	client := newAPIClient(t, env.server.URL)
	client.login("admin@acme.test", "correct horse battery")

	// mint a token through the dashboard API; the secret comes back once
	resp := client.do(http.MethodPost, "/api/api-tokens", map[string]string{"name": "ci"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("mint token: %d", resp.StatusCode)
	}
	var minted struct {
		Token    string         `json:"token"`
		APIToken store.APIToken `json:"api_token"`
	}
	decodeBody(t, resp, &minted)
	if !strings.HasPrefix(minted.Token, "blk_") {
		t.Fatalf("token %q lacks the blk_ prefix", minted.Token)
	}

	listURL := env.server.URL + "/api/v1/reviewees"

	// no token and a bad token both get a uniform 401
	for _, bad := range []string{"", "blk_not_a_real_token", "totally-wrong"} {
		resp := bearerGet(t, listURL, bad)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: status %d, want 401", bad, resp.StatusCode)
		}
	}

	resp = bearerGet(t, listURL, minted.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list reviewees: %d", resp.StatusCode)
	}
	var listed struct {
		Items []struct {
			UUID  string `json:"uuid"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"items"`
	}
	decodeBody(t, resp, &listed)
	if len(listed.Items) != 1 || listed.Items[0].Name != "Nora Berg" {
		t.Fatalf("listed reviewees: %+v", listed.Items)
	}
	if listed.Items[0].UUID == "" {
		t.Fatalf("reviewee exposed without a public uuid")
	}

	// resources resolve by uuid, not row id
	resp = bearerGet(t, env.server.URL+"/api/v1/reviewees/"+listed.Items[0].UUID, minted.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get reviewee by uuid: %d", resp.StatusCode)
	}
	resp = bearerGet(t, env.server.URL+"/api/v1/reviewees/00000000-0000-0000-0000-000000000000", minted.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown uuid: %d, want 404", resp.StatusCode)
	}

	// the successful call stamps last_used_at
	stored, err := env.runtime.ServerDeps.APITokens.GetByHash(ctx, utils.Sha256Hex([]byte(minted.Token)))
	if err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if stored == nil || stored.LastUsedAt == nil {
		t.Fatalf("last_used_at not stamped: %+v", stored)
	}

	// a revoked token stops working immediately
	resp = client.do(http.MethodDelete, fmt.Sprintf("/api/api-tokens/%d", minted.APIToken.ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke: %d", resp.StatusCode)
	}
	resp = bearerGet(t, listURL, minted.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token: %d, want 401", resp.StatusCode)
	}
}
