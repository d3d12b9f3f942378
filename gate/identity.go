package gate

import (
	"net/mail"
	"strings"
	"time"
)

// Credentials identify a logged-in caller.
type Credentials struct {
	UserID    string
	Token     string
	LoginName string
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.UserID) == "" || strings.TrimSpace(c.Token) == "" || strings.TrimSpace(c.LoginName) == "" {
		return NewError(KindValidation, MsgInvalidIdentity, nil)
	}
	return nil
}

// Session is the stored login for a (user, token, login name) triple.
type Session struct {
	UserID    string
	Token     string
	LoginName string
	Expire    time.Time
}

// ExpiredAt reports whether the session has expired at now.
// A session is still valid at exactly its expiry instant.
func (s Session) ExpiredAt(now time.Time) bool { return now.After(s.Expire) }

// User is an account record as seen by the gate.
type User struct {
	ID       string
	Username string
	Email    string
	GroupIDs []string
	IsActive bool
	IsAdmin  bool
}

// MatchesLogin reports whether loginName names this user, by email when it
// parses as an address and by username otherwise.
func (u User) MatchesLogin(loginName string) bool {
	if addr, err := mail.ParseAddress(loginName); err == nil && addr.Address == loginName {
		return strings.EqualFold(u.Email, loginName)
	}
	return u.Username == loginName
}

// Profile carries the user's primary group membership.
type Profile struct {
	UserID   string
	GroupID  string
	IsActive bool
}

// Resource is a named table or collection in the resource directory.
type Resource struct {
	ID       string
	Name     string
	Category string
}

// Identity is the authenticated principal for one decision.
type Identity struct {
	UserID   string
	GroupID  string
	GroupIDs []string
	IsActive bool
	IsAdmin  bool
}

// IdentityContext is the output of identity resolution: the principal plus
// the active grants fetched for the target resource and records.
type IdentityContext struct {
	Identity
	Grants  []RoleGrant
	TableID string
}

// Verdict is the outcome of an authorization decision.
type Verdict struct {
	Allowed  bool     `json:"ok"`
	IsAdmin  bool     `json:"isAdmin"`
	IsActive bool     `json:"isActive"`
	UserID   string   `json:"userId"`
	Group    string   `json:"group"`
	Groups   []string `json:"groups"`
}

func allow(id Identity) Verdict {
	return Verdict{
		Allowed:  true,
		IsAdmin:  id.IsAdmin,
		IsActive: id.IsActive,
		UserID:   id.UserID,
		Group:    id.GroupID,
		Groups:   append([]string(nil), id.GroupIDs...),
	}
}

// Identifiable is implemented by records that expose their primary key.
type Identifiable interface {
	RecordID() string
}

// Identifiables converts a typed record batch for the result-set checks.
func Identifiables[T Identifiable](records []T) []Identifiable {
	out := make([]Identifiable, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

// uniqueIDs returns ids without blanks or duplicates, preserving order.
// The input slice is never modified.
func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
