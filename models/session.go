package models

// Role is the closed set of caller roles. It is derived once at login from
// the server's is_admin/is_staff flags and carried on the session; callers
// must never re-check the raw flags.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserProfile is an immutable snapshot of the authenticated user, fetched
// once per login and not re-validated until the next login.
type UserProfile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	IsStaff  bool   `json:"is_staff"`
}

// RoleOf derives the closed role from the server's boolean flags.
// Either flag set means admin.
func (p *UserProfile) RoleOf() Role {
	if p == nil {
		return RoleGuest
	}
	if p.IsAdmin || p.IsStaff {
		return RoleAdmin
	}
	return RoleUser
}

// Session holds the current credentials and cached profile. Exactly one
// session exists per client instance; it is persisted so a restart
// reconstructs the same session.
type Session struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	Profile      *UserProfile `json:"user_profile,omitempty"`
}

// Authenticated reports whether the session carries an access token.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Role returns the session's derived role; a tokenless session is a guest.
func (s Session) Role() Role {
	if !s.Authenticated() {
		return RoleGuest
	}
	return s.Profile.RoleOf()
}
