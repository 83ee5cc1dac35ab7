package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"blik/config"
	"blik/core/auth"
	"blik/core/mail"
	"blik/core/rbac"
	"blik/core/store"
	"blik/core/utils"
)

type AuthHandler struct {
	cfg            *config.AppConfig
	users          store.UsersStore
	orgs           store.OrganizationsStore
	sessions       store.SessionStore
	sessionManager *auth.SessionManager
	policy         *rbac.Policy
	mailer         mail.Sender
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, orgs store.OrganizationsStore, sessions store.SessionStore, sm *auth.SessionManager, policy *rbac.Policy, mailer mail.Sender, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, orgs: orgs, sessions: sessions, sessionManager: sm, policy: policy, mailer: mailer, logger: logger}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	cred.Email = strings.ToLower(strings.TrimSpace(cred.Email))
	if err := utils.ValidateEmail(cred.Email); err != nil {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	user, err := h.users.GetByEmail(r.Context(), cred.Email)
	if err != nil || user == nil || !user.Active {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	ph := auth.PasswordHash{Hash: user.PasswordHash, Salt: user.Salt}
	ok, err := auth.VerifyPassword(cred.Password, h.cfg.Pepper, ph)
	if err != nil || !ok {
		if h.logger != nil {
			h.logger.Printf("AUTH login failed for %s", cred.Email)
		}
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	sess, err := h.sessionManager.Create(r.Context(), user, []string{user.Role}, clientIP(r, h.cfg), r.UserAgent())
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("session create for %s: %v", cred.Email, err)
		}
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	h.setSessionCookies(w, r, sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       h.userPayload(user),
		"csrf_token": sess.CSRFToken,
		"session":    sess,
	})
}

// Register creates a member account in the single organization that has
// open registration enabled. Zero or several candidate organizations both
// refuse signup; the caller never picks the tenant.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	if err := utils.ValidateEmail(payload.Email); err != nil {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	if err := utils.ValidatePassword(payload.Password); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	candidates, err := h.orgs.ListAllowingRegistration(r.Context())
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if len(candidates) == 0 {
		http.Error(w, "registration is disabled", http.StatusForbidden)
		return
	}
	if len(candidates) > 1 {
		if h.logger != nil {
			h.logger.Errorf("registration refused: %d organizations allow signup", len(candidates))
		}
		http.Error(w, "registration is unavailable", http.StatusConflict)
		return
	}
	org := candidates[0]
	existing, err := h.users.GetByEmail(r.Context(), payload.Email)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}
	ph, err := auth.HashPassword(payload.Password, h.cfg.Pepper)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	displayName := strings.TrimSpace(payload.DisplayName)
	if displayName == "" {
		displayName = payload.Email
	}
	user := &store.User{
		OrgID:        org.ID,
		Email:        payload.Email,
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		DisplayName:  displayName,
		Role:         store.RoleMember,
		Active:       true,
	}
	id, err := h.users.Create(r.Context(), user)
	if err != nil {
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	user.ID = id
	if h.mailer != nil {
		if err := h.mailer.Send(r.Context(), &org, mail.SignupWelcome(h.cfg.BaseURL, &org, user.Email)); err != nil && h.logger != nil {
			h.logger.Errorf("signup welcome mail to %s: %v", user.Email, err)
		}
	}
	sess, err := h.sessionManager.Create(r.Context(), user, []string{user.Role}, clientIP(r, h.cfg), r.UserAgent())
	if err != nil {
		// Account exists either way; the user can still log in normally.
		writeJSON(w, http.StatusCreated, map[string]any{"user": h.userPayload(user)})
		return
	}
	h.setSessionCookies(w, r, sess)
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":       h.userPayload(user),
		"csrf_token": sess.CSRFToken,
		"session":    sess,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		_ = h.sessions.DeleteSession(r.Context(), cookie.Value)
	}
	cookieSecure := isSecureRequest(r, h.cfg)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sr := requestSession(r)
	if sr == nil {
		http.Error(w, errUnauthorized, http.StatusUnauthorized)
		return
	}
	user, err := h.users.GetByID(r.Context(), sr.UserID)
	if err != nil || user == nil {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       h.userPayload(user),
		"csrf_token": sr.CSRFToken,
	})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, r *http.Request, sess *store.SessionRecord) {
	cookieSecure := isSecureRequest(r, h.cfg)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	// The CSRF cookie stays readable from JS so the SPA can echo it back in
	// the X-CSRF-Token header.
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

func (h *AuthHandler) userPayload(user *store.User) map[string]any {
	return map[string]any{
		"id":           user.ID,
		"org_id":       user.OrgID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"role":         user.Role,
		"active":       user.Active,
		"permissions":  h.policy.PermissionsFor([]string{user.Role}),
	}
}

func clientIP(r *http.Request, cfg *config.AppConfig) string {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	ip = strings.TrimSpace(ip)
	if cfg == nil || !isTrustedProxy(ip, cfg.Security.TrustedProxies) {
		return ip
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if candidate := extractClientIPFromXFF(xff, cfg.Security.TrustedProxies); candidate != "" {
			return candidate
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if parsed := net.ParseIP(realIP); parsed != nil {
			return parsed.String()
		}
	}
	return ip
}

func isSecureRequest(r *http.Request, cfg *config.AppConfig) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if cfg == nil {
		return false
	}
	if cfg.TLSEnabled {
		return true
	}
	remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if remoteIP == "" {
		remoteIP = strings.TrimSpace(r.RemoteAddr)
	}
	remoteIP = strings.TrimSpace(remoteIP)
	if !isTrustedProxy(remoteIP, cfg.Security.TrustedProxies) {
		return false
	}
	xffProto := strings.ToLower(strings.TrimSpace(strings.SplitN(r.Header.Get("X-Forwarded-Proto"), ",", 2)[0]))
	return xffProto == "https"
}

func extractClientIPFromXFF(xff string, trusted []string) string {
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(parts[i])
		parsed := net.ParseIP(candidate)
		if parsed == nil {
			continue
		}
		val := parsed.String()
		if !isTrustedProxy(val, trusted) {
			return val
		}
	}
	return ""
}

func isTrustedProxy(ip string, trusted []string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, raw := range trusted {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if strings.Contains(val, "/") {
			if _, block, err := net.ParseCIDR(val); err == nil && block.Contains(parsed) {
				return true
			}
			continue
		}
		if parsed.Equal(net.ParseIP(val)) {
			return true
		}
	}
	return false
}
