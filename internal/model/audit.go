package model

import "time"

type AuditAction string

const (
	AuditLogin             AuditAction = "auth.login"
	AuditLoginFailed       AuditAction = "auth.login_failed"
	AuditLogout            AuditAction = "auth.logout"
	AuditLogoutAll         AuditAction = "auth.logout_all"
	AuditTokenRefreshed    AuditAction = "auth.token_refreshed"
	AuditTokenReused       AuditAction = "auth.token_reused"
	AuditRotationConflict  AuditAction = "auth.rotation_conflict"
	AuditTokenRejected     AuditAction = "auth.token_rejected"
	AuditCSRFRejected      AuditAction = "auth.csrf_rejected"
	AuditAccessDenied      AuditAction = "access.denied"
	AuditOverrideSet       AuditAction = "permission.override_set"
	AuditOverrideCleared   AuditAction = "permission.override_cleared"
	AuditUserCreated       AuditAction = "user.created"
	AuditUserUpdated       AuditAction = "user.updated"
	AuditUserDeactivated   AuditAction = "user.deactivated"
	AuditRequestCompleted  AuditAction = "request.completed"
	AuditRateLimited       AuditAction = "request.rate_limited"
)

// Critical reports whether entries of this action must reach durable storage
// before the request that produced them is answered.
func (a AuditAction) Critical() bool {
	switch a {
	case AuditTokenRefreshed, AuditRequestCompleted, AuditRateLimited:
		return false
	default:
		return true
	}
}

type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityCritical AuditSeverity = "critical"
)

const (
	TargetUser    = "user"
	TargetSession = "session"
	TargetPage    = "page"
	TargetRequest = "request"
)

type AuditEntry struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"-"`
	ActorID    string         `json:"actor_id,omitempty"`
	ActorRole  string         `json:"actor_role,omitempty"`
	Action     AuditAction    `json:"action"`
	Severity   AuditSeverity  `json:"severity"`
	TargetType string         `json:"target_type,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	TargetRole string         `json:"target_role,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IP         string         `json:"ip,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type AuditQuery struct {
	Action     string
	ActorID    string
	TargetType string
	TargetID   string
	Severity   string
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}

// AuditScope is the visibility window derived from the requester's role.
// The zero value sees nothing.
type AuditScope struct {
	All          bool
	ExcludeAdmin bool
	ActorID      string
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
