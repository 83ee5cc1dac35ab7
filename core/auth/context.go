package auth

type contextKey string

// SessionContextKey carries the authenticated *store.SessionRecord through
// request contexts.
const SessionContextKey contextKey = "blik.session"

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
