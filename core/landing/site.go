// Package landing serves the marketing pages. The same handler backs two
// deployments: mounted under /landing inside the full application, and as
// the whole site when the standalone landing binary runs with no database
// or auth wired in.
package landing

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"blik/config"
	"blik/core/funcmap"
	"blik/core/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

type page struct {
	route    string // path segment, "" for the index
	template string
	title    string
}

var pages = []page{
	{route: "", template: "index.html", title: "Open Source 360° Feedback"},
	{route: "open-source", template: "open_source.html", title: "Open Source"},
	{route: "dreyfus-model", template: "dreyfus_model.html", title: "The Dreyfus Model"},
	{route: "eu-tech", template: "eu_tech.html", title: "European Tech"},
	{route: "privacy", template: "privacy.html", title: "Privacy"},
}

type Site struct {
	cfg        config.LandingConfig
	stripe     config.StripeConfig
	standalone bool
	tmpl       *template.Template
	logger     *utils.Logger
}

// New parses the embedded templates with the shared funcmap. Standalone
// mode changes only the prefix of generated links, never the page set.
func New(cfg config.LandingConfig, stripe config.StripeConfig, standalone bool, logger *utils.Logger) (*Site, error) {
	tmpl, err := template.New("landing").
		Funcs(funcmap.New(funcmap.Options{StandaloneLanding: standalone})).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse landing templates: %w", err)
	}
	return &Site{cfg: cfg, stripe: stripe, standalone: standalone, tmpl: tmpl, logger: logger}, nil
}

func (s *Site) Routes() http.Handler {
	r := chi.NewRouter()
	for _, p := range pages {
		p := p
		path := "/" + p.route
		r.Get(path, func(w http.ResponseWriter, req *http.Request) {
			s.render(w, p)
		})
	}
	r.Get("/robots.txt", s.robots)
	r.Get("/sitemap.xml", s.sitemap)
	return r
}

func (s *Site) render(w http.ResponseWriter, p page) {
	data := map[string]any{
		"site_name":        s.cfg.SiteName,
		"site_domain":      s.cfg.SiteDomain,
		"site_description": "Open source 360-degree feedback and performance review platform. Anonymous, secure, and easy to deploy.",
		"site_keywords":    "360 feedback, performance review, open source, self-hosted, anonymous feedback, employee feedback",
		"main_app_url":     s.cfg.MainAppURL,
		"page_title":       p.title,
	}
	for k, v := range funcmap.BillingContext(s.stripe) {
		data[k] = v
	}
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, p.template, data); err != nil {
		if s.logger != nil {
			s.logger.Errorf("render %s: %v", p.template, err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Site) baseURL() string {
	return "https://" + s.cfg.SiteDomain
}

func (s *Site) prefix() string {
	if s.standalone {
		return ""
	}
	return "/landing"
}

func (s *Site) robots(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\n")
	b.WriteString("Disallow: /api/\nDisallow: /feedback/\nDisallow: /reports/\n")
	fmt.Fprintf(&b, "\nSitemap: %s/sitemap.xml\n", s.baseURL())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Site) sitemap(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for i, p := range pages {
		priority := "0.8"
		if i == 0 {
			priority = "1.0"
		}
		loc := s.baseURL() + s.prefix() + "/" + p.route
		fmt.Fprintf(&b, "  <url><loc>%s</loc><changefreq>weekly</changefreq><priority>%s</priority></url>\n", loc, priority)
	}
	b.WriteString("</urlset>\n")
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}
