package session

import "estately/models"

// Capability is an action or page the gate can permit.
type Capability string

const (
	CapViewAdminPanel  Capability = "viewAdminPanel"
	CapMutateProperty  Capability = "mutateProperty"
	CapViewOwnBookings Capability = "viewOwnBookings"
	CapCancelBooking   Capability = "cancelBooking"
)

// Gate decides whether a session may perform a capability. Denials are plain
// booleans, never errors; the caller owns the user-visible redirect or toast.
type Gate struct{}

// CanAccess applies the role rules: no token permits only unauthenticated
// capabilities, admin panel and property mutation require the admin role, and
// bookings require any authenticated session. Ownership-scoped cancel checks
// go through CanCancel.
func (Gate) CanAccess(cap Capability, sess models.Session) bool {
	role := sess.Role()
	switch cap {
	case CapViewAdminPanel, CapMutateProperty:
		return role == models.RoleAdmin
	case CapViewOwnBookings, CapCancelBooking:
		return role != models.RoleGuest
	}
	return false
}

// CanCancel reports whether the session may cancel a booking owned by
// ownerID: the owner themselves, or an admin (who may also force-cancel via
// the status-override path).
func (g Gate) CanCancel(sess models.Session, ownerID int64) bool {
	if !g.CanAccess(CapCancelBooking, sess) {
		return false
	}
	if sess.Role() == models.RoleAdmin {
		return true
	}
	return sess.Profile != nil && sess.Profile.ID == ownerID
}
