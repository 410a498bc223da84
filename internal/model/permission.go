package model

import "time"

// defaultAccess is the page access every role has before overrides.
var defaultAccess = [RoleCount][PageCount]bool{
	RoleAdmin: {
		PageDashboard:      true,
		PageInterviews:     true,
		PageCandidates:     true,
		PageCalls:          true,
		PageSettings:       true,
		PageUserManagement: true,
	},
	RoleManager: {
		PageDashboard:  true,
		PageInterviews: true,
		PageCandidates: true,
		PageCalls:      true,
		PageSettings:   true,
	},
	RoleAgent: {
		PageDashboard:  true,
		PageInterviews: true,
		PageCalls:      true,
		PageSettings:   true,
	},
	RoleViewer: {
		PageDashboard: true,
		PageSettings:  true,
	},
}

// DefaultAccess reports the static access of role to page. Unknown roles or
// pages have no access.
func DefaultAccess(role Role, page Page) bool {
	if !role.Valid() || !page.Valid() {
		return false
	}
	return defaultAccess[role][page]
}

// EffectiveAccess resolves access from an optional override and the role default.
func EffectiveAccess(role Role, page Page, override *bool) bool {
	if override != nil {
		return *override
	}
	return DefaultAccess(role, page)
}

// LosesUserManagement reports whether a change takes user management away
// from an active administrator. Such a change needs another active
// administrator who keeps it.
func LosesUserManagement(before User, hadAccess bool, after User, hasAccess bool) bool {
	if !before.Active || !before.Role.IsAdmin() || !hadAccess {
		return false
	}
	return !after.Active || !after.Role.IsAdmin() || !hasAccess
}

type PageOverride struct {
	UserID    string    `json:"user_id"`
	Page      Page      `json:"page"`
	HasAccess bool      `json:"has_access"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OverrideChange describes one administrative write to a user's page access.
type OverrideChange struct {
	UserID           string `json:"user_id"`
	Page             Page   `json:"page"`
	Before           bool   `json:"before"`
	After            bool   `json:"after"`
	PreviousOverride *bool  `json:"previous_override"`
}

// OverrideWrite sets (Value non-nil) or clears (Value nil) an override. The
// store resolves the change against the user as it finds it and writes the
// entry Audit returns in the same transaction.
type OverrideWrite struct {
	UserID    string
	Page      Page
	Value     *bool
	UpdatedBy string
	UpdatedAt time.Time
	Audit     func(target User, change OverrideChange) AuditEntry
}

// UserWrite replaces a user's mutable fields. Audit receives the stored user
// before the change.
type UserWrite struct {
	User  User
	Audit func(before User) AuditEntry
}
