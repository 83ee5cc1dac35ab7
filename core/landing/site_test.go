package landing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blik/config"
	"blik/core/utils"
)

func newTestSite(t *testing.T, standalone bool) *Site {
	t.Helper()
	cfg := config.LandingConfig{
		SiteName:   "Blik360",
		SiteDomain: "blik360.com",
		MainAppURL: "https://app.blik360.com",
	}
	site, err := New(cfg, config.StripeConfig{PriceIDSaaS: "price_saas"}, standalone, utils.NewLogger())
	if err != nil {
		t.Fatalf("new site: %v", err)
	}
	return site
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLandingPagesRender(t *testing.T) {
	h := newTestSite(t, true).Routes()
	for _, path := range []string{"/", "/open-source", "/dreyfus-model", "/eu-tech", "/privacy"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s -> %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("%s content type %q", path, ct)
		}
		if !strings.Contains(rec.Body.String(), "Blik360") {
			t.Fatalf("%s missing site name", path)
		}
	}
}

func TestLandingLinkPrefixFollowsMode(t *testing.T) {
	standalone := get(t, newTestSite(t, true).Routes(), "/").Body.String()
	mounted := get(t, newTestSite(t, false).Routes(), "/").Body.String()

	if !strings.Contains(standalone, `href="/open-source"`) {
		t.Fatalf("standalone page lacks root-relative link:\n%s", standalone)
	}
	if !strings.Contains(mounted, `href="/landing/open-source"`) {
		t.Fatalf("mounted page lacks namespaced link:\n%s", mounted)
	}
}

func TestLandingPricingNeedsStripeConfig(t *testing.T) {
	cfg := config.LandingConfig{SiteName: "Blik360", SiteDomain: "blik360.com"}
	site, err := New(cfg, config.StripeConfig{}, true, utils.NewLogger())
	if err != nil {
		t.Fatalf("new site: %v", err)
	}
	body := get(t, site.Routes(), "/").Body.String()
	if strings.Contains(body, "Hosted plans") {
		t.Fatalf("pricing section rendered without stripe config")
	}

	withStripe := get(t, newTestSite(t, true).Routes(), "/").Body.String()
	if !strings.Contains(withStripe, "price_saas") {
		t.Fatalf("pricing section missing configured price id")
	}
}

func TestRobotsAndSitemap(t *testing.T) {
	h := newTestSite(t, true).Routes()

	robots := get(t, h, "/robots.txt")
	if robots.Code != http.StatusOK || !strings.Contains(robots.Body.String(), "Sitemap: https://blik360.com/sitemap.xml") {
		t.Fatalf("robots: %d %q", robots.Code, robots.Body.String())
	}

	sitemap := get(t, h, "/sitemap.xml")
	if sitemap.Code != http.StatusOK {
		t.Fatalf("sitemap: %d", sitemap.Code)
	}
	if !strings.Contains(sitemap.Body.String(), "<loc>https://blik360.com/</loc>") {
		t.Fatalf("sitemap missing standalone index url:\n%s", sitemap.Body.String())
	}

	mounted := get(t, newTestSite(t, false).Routes(), "/sitemap.xml").Body.String()
	if !strings.Contains(mounted, "<loc>https://blik360.com/landing/</loc>") {
		t.Fatalf("mounted sitemap missing /landing prefix:\n%s", mounted)
	}
}
