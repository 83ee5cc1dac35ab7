package mail

import (
	"fmt"
	"strings"

	"blik/core/store"
)

// FeedbackURL builds the public form link a reviewer opens.
func FeedbackURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/feedback/" + token
}

// DashboardCycleURL builds the admin link a close-check email points at.
func DashboardCycleURL(baseURL string, cycleID int64) string {
	return fmt.Sprintf("%s/dashboard/cycles/%d", strings.TrimRight(baseURL, "/"), cycleID)
}

func Invitation(baseURL, revieweeName, questionnaireTitle string, token *store.ReviewerToken) *Message {
	url := FeedbackURL(baseURL, token.Token)
	body := fmt.Sprintf(`Hello,

You have been asked to share feedback about %s as part of a 360 review
(%s), in the role of %s.

Your answers are anonymous: they are combined with other responses and
never shown individually.

Open your feedback form here:

  %s

The link is personal, please do not forward it.

Thank you for taking the time.
`, revieweeName, questionnaireTitle, store.CategoryLabel(token.Category), url)
	return &Message{
		To:      token.ReviewerEmail,
		Subject: "360 Feedback Request: " + revieweeName,
		Body:    body,
	}
}

func Reminder(baseURL, revieweeName, questionnaireTitle string, token *store.ReviewerToken) *Message {
	url := FeedbackURL(baseURL, token.Token)
	body := fmt.Sprintf(`Hello,

This is a friendly reminder that your feedback about %s (%s) is still
open. It only takes a few minutes to complete.

Open your feedback form here:

  %s

Thank you.
`, revieweeName, questionnaireTitle, url)
	return &Message{
		To:      token.ReviewerEmail,
		Subject: "Reminder: 360 Feedback Request for " + revieweeName,
		Body:    body,
	}
}

// Welcome carries the initial credentials for an account provisioned
// through checkout. Sent once; the password is not stored anywhere else.
func Welcome(baseURL string, org *store.Organization, email, password string) *Message {
	loginURL := strings.TrimRight(baseURL, "/") + "/login"
	body := fmt.Sprintf(`Hello,

Your Blik account for %s is ready.

Sign in here:

  %s

  Email:    %s
  Password: %s

Please change the password after your first sign-in.
`, org.Name, loginURL, email, password)
	return &Message{
		To:      email,
		Subject: "Welcome to Blik - Your Account is Ready",
		Body:    body,
	}
}

// SignupWelcome greets a self-registered user; unlike Welcome it never
// carries credentials.
func SignupWelcome(baseURL string, org *store.Organization, email string) *Message {
	loginURL := strings.TrimRight(baseURL, "/") + "/login"
	body := fmt.Sprintf(`Hello,

Welcome to Blik! Your account at %s is ready to use.

Sign in here:

  %s

You can start by adding the people you want to collect feedback for and
opening your first review cycle.
`, org.Name, loginURL)
	return &Message{
		To:      email,
		Subject: "Welcome to Blik",
		Body:    body,
	}
}

func CloseCheck(baseURL, questionnaireTitle string, cycle *store.ReviewCycle, reviewee *store.Reviewee, completed, total int) *Message {
	url := DashboardCycleURL(baseURL, cycle.ID)
	body := fmt.Sprintf(`Hello %s,

Your 360 review (%s) has been collecting feedback for a while:
%d of %d reviewers have completed their questionnaire.

If you have received enough feedback, you can close the review and
generate your report from the dashboard:

  %s

If you are still waiting for responses, no action is needed.
`, reviewee.Name, questionnaireTitle, completed, total, url)
	return &Message{
		To:      reviewee.Email,
		Subject: "Review Check-In: " + questionnaireTitle,
		Body:    body,
	}
}
