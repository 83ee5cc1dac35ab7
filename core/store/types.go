package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	CycleStatusActive    = "active"
	CycleStatusCompleted = "completed"

	CategorySelf         = "self"
	CategoryPeer         = "peer"
	CategoryManager      = "manager"
	CategoryDirectReport = "direct_report"

	QuestionKindRating         = "rating"
	QuestionKindLikert         = "likert"
	QuestionKindText           = "text"
	QuestionKindMultipleChoice = "multiple_choice"

	DeliveryStatusPending = "pending"
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"

	PlanSaaS       = "saas"
	PlanEnterprise = "enterprise"
)

// ReviewerCategories is the fixed set minted for every new cycle, in
// presentation order.
var ReviewerCategories = []string{CategorySelf, CategoryPeer, CategoryManager, CategoryDirectReport}

var categoryLabels = map[string]string{
	CategorySelf:         "Self Assessment",
	CategoryPeer:         "Peer Review",
	CategoryManager:      "Manager Review",
	CategoryDirectReport: "Direct Report Review",
}

// CategoryLabel returns the display name for a reviewer category, falling
// back to the raw value for anything unknown.
func CategoryLabel(category string) string {
	if label, ok := categoryLabels[category]; ok {
		return label
	}
	return category
}

type Organization struct {
	ID                       int64     `json:"id"`
	Name                     string    `json:"name"`
	Slug                     string    `json:"slug"`
	AllowRegistration        bool      `json:"allow_registration"`
	MinResponsesForAnonymity int       `json:"min_responses_for_anonymity"`
	SMTPHost                 string    `json:"smtp_host"`
	SMTPPort                 int       `json:"smtp_port"`
	SMTPUsername             string    `json:"smtp_username"`
	SMTPPasswordEnc          []byte    `json:"-"`
	SMTPUseTLS               bool      `json:"smtp_use_tls"`
	SMTPFrom                 string    `json:"smtp_from"`
	Active                   bool      `json:"active"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

type User struct {
	ID           int64     `json:"id"`
	OrgID        int64     `json:"org_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SessionRecord struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	CSRFToken  string    `json:"-"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type Reviewee struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	RoleTitle string    `json:"role_title"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Questionnaire struct {
	ID          int64     `json:"id"`
	OrgID       *int64    `json:"org_id,omitempty"`
	UUID        string    `json:"uuid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Sections []QuestionSection `json:"sections,omitempty"`
}

type QuestionSection struct {
	ID              int64  `json:"id"`
	QuestionnaireID int64  `json:"questionnaire_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Position        int    `json:"position"`

	Questions []Question `json:"questions,omitempty"`
}

type Question struct {
	ID        int64  `json:"id"`
	SectionID int64  `json:"section_id"`
	UUID      string `json:"uuid"`
	Text      string `json:"text"`
	Kind      string `json:"kind"`
	Config    string `json:"config"`
	Position  int    `json:"position"`
	Required  bool   `json:"required"`
}

type ReviewCycle struct {
	ID               int64      `json:"id"`
	OrgID            int64      `json:"org_id"`
	RevieweeID       int64      `json:"reviewee_id"`
	QuestionnaireID  int64      `json:"questionnaire_id"`
	Status           string     `json:"status"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosesAt         *time.Time `json:"closes_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CloseCheckSentAt *time.Time `json:"close_check_sent_at,omitempty"`
	CreatedBy        *int64     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ReviewerToken struct {
	ID               int64      `json:"id"`
	CycleID          int64      `json:"cycle_id"`
	Token            string     `json:"token"`
	Category         string     `json:"category"`
	ReviewerEmail    string     `json:"reviewer_email"`
	InvitationSentAt *time.Time `json:"invitation_sent_at,omitempty"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ReminderSentAt   *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Response struct {
	ID          int64     `json:"id"`
	TokenID     int64     `json:"token_id"`
	QuestionID  int64     `json:"question_id"`
	Answer      string    `json:"answer"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CycleResponse joins a response with the category of the token that
// submitted it; report generation groups on this.
type CycleResponse struct {
	QuestionID int64
	TokenID    int64
	Category   string
	Answer     string
}

type Report struct {
	ID          int64     `json:"id"`
	CycleID     int64     `json:"cycle_id"`
	UUID        string    `json:"uuid"`
	GeneratedAt time.Time `json:"generated_at"`
	Data        string    `json:"data"`
}

type UpgradeStepRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	AppliedAt time.Time `json:"applied_at"`
	Success   bool      `json:"success"`
	ErrorText string    `json:"error_text"`
}

type APIToken struct {
	ID         int64      `json:"id"`
	OrgID      int64      `json:"org_id"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

type WebhookEndpoint struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WebhookDelivery struct {
	ID          int64      `json:"id"`
	EndpointID  int64      `json:"endpoint_id"`
	UUID        string     `json:"uuid"`
	EventType   string     `json:"event_type"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type Subscription struct {
	ID                   int64      `json:"id"`
	OrgID                int64      `json:"org_id"`
	Plan                 string     `json:"plan"`
	StripeCustomerID     string     `json:"-"`
	StripeSubscriptionID string     `json:"-"`
	Status               string     `json:"status"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func stringsToJSON(vals []string) string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return "[]"
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func parseJSONStrings(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil
	}
	return vals
}
