package rag

// Role mirrors the account tiers of the web app.
type Role string

const (
	RoleGuest    Role = "GUEST"
	RoleDisciple Role = "DISCIPLE"
	RoleMinister Role = "MINISTER"
)

// Caller identifies who issued a request. A zero Caller is anonymous.
type Caller struct {
	UserID string
	Role   Role
	Tier   string
}

// Anonymous reports whether the caller carries no identity.
func (c Caller) Anonymous() bool {
	return c.UserID == ""
}

// RequestContext is created per request by the transport layer and passed
// explicitly through the pipeline.
type RequestContext struct {
	Caller    Caller
	RequestID string
}

// ParseRole maps a claim value onto a Role; unknown values become RoleGuest.
func ParseRole(v string) Role {
	switch Role(v) {
	case RoleDisciple, RoleMinister:
		return Role(v)
	default:
		return RoleGuest
	}
}
