package compat

import (
	"time"
)

// Scale bounds for every ordinal survey answer.
const (
	ScaleMin      = 1
	ScaleMax      = 5
	ScaleMidpoint = 3
)

// UserProfile is the read-only snapshot of a user the scoring engine works on.
type UserProfile struct {
	ID          int         `json:"id"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email,omitempty"`
	Bio         string      `json:"bio,omitempty"`
	Hometown    string      `json:"hometown,omitempty"`
	Socials     Socials     `json:"socials"`
	Lifestyle   Lifestyle   `json:"lifestyle"`
	Interests   []string    `json:"interests"`
	Preferences Preferences `json:"preferences"`
}

// Socials holds optional social handles shown on a profile.
type Socials struct {
	Instagram string `json:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
}

// Lifestyle holds the survey answers. A nil field was never answered.
type Lifestyle struct {
	Cleanliness    *int  `json:"cleanliness"`
	SocialLevel    *int  `json:"socialLevel"`
	SleepSchedule  *int  `json:"sleepSchedule"`
	GuestFrequency *int  `json:"guestFrequency"`
	Smoking        *bool `json:"smoking"`
	Drinking       *bool `json:"drinking"`
	Pets           *bool `json:"pets"`
}

// Preferences are the housing preferences a user can fill in next to the survey.
// They are displayed but never scored.
type Preferences struct {
	BudgetMin     *int       `json:"budgetMin,omitempty"`
	BudgetMax     *int       `json:"budgetMax,omitempty"`
	MoveInDate    *time.Time `json:"moveInDate,omitempty"`
	PreferredArea string     `json:"preferredArea,omitempty"`
	LeaseMonths   *int       `json:"leaseMonths,omitempty"`
}

// Match status values.
const (
	MatchPending   = "pending"
	MatchAccepted  = "accepted"
	MatchDeclined  = "declined"
	MatchCancelled = "cancelled"
	MatchUnmatched = "unmatched"
)

// Match is a persisted pairing of two users. The engine passes it through untouched.
type Match struct {
	ID          int       `json:"id"`
	User1ID     int       `json:"user1"`
	User2ID     int       `json:"user2"`
	Status      string    `json:"status"`
	RequestedBy int       `json:"requestedBy"`
	AIReport    *string   `json:"aiReport,omitempty"`
	Icebreakers []string  `json:"icebreakers,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Involves reports whether userID is one of the two sides of the match.
func (m Match) Involves(userID int) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// Peer returns the other side of the match for userID.
func (m Match) Peer(userID int) int {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

// Validate checks the shape of a profile before it is scored.
// Missing answers are fine; out-of-range answers are not.
func (p *UserProfile) Validate() error {
	if p == nil {
		return &InvalidInputError{Field: "profile", Reason: "missing"}
	}
	ordinals := []struct {
		field string
		v     *int
	}{
		{"cleanliness", p.Lifestyle.Cleanliness},
		{"socialLevel", p.Lifestyle.SocialLevel},
		{"sleepSchedule", p.Lifestyle.SleepSchedule},
		{"guestFrequency", p.Lifestyle.GuestFrequency},
	}
	for _, o := range ordinals {
		if o.v != nil && (*o.v < ScaleMin || *o.v > ScaleMax) {
			return &InvalidInputError{Field: o.field, Reason: "must be between 1 and 5"}
		}
	}
	return p.Preferences.Validate()
}

// Validate checks the typed housing preferences.
func (pr Preferences) Validate() error {
	if pr.BudgetMin != nil && *pr.BudgetMin < 0 {
		return &InvalidInputError{Field: "budgetMin", Reason: "must not be negative"}
	}
	if pr.BudgetMax != nil && *pr.BudgetMax < 0 {
		return &InvalidInputError{Field: "budgetMax", Reason: "must not be negative"}
	}
	if pr.BudgetMin != nil && pr.BudgetMax != nil && *pr.BudgetMin > *pr.BudgetMax {
		return &InvalidInputError{Field: "budgetMin", Reason: "must not exceed budgetMax"}
	}
	if pr.LeaseMonths != nil && (*pr.LeaseMonths < 1 || *pr.LeaseMonths > 24) {
		return &InvalidInputError{Field: "leaseMonths", Reason: "must be between 1 and 24"}
	}
	return nil
}

// SurveyComplete reports whether every lifestyle question has an answer.
func (l Lifestyle) SurveyComplete() bool {
	return l.Cleanliness != nil && l.SocialLevel != nil && l.SleepSchedule != nil &&
		l.GuestFrequency != nil && l.Smoking != nil && l.Drinking != nil && l.Pets != nil
}
