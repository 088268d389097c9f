package types

// Actor is the acting user of a request, as established by the auth middleware.
type Actor struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the actor carries role.
func (a *Actor) HasRole(role string) bool {
	if a == nil || role == "" {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
