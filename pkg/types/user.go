package types

type Role string

const (
	RolePatient Role = "patient"
	RoleNurse   Role = "nurse"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller as supplied by the identity layer. The
// core trusts it and only checks ownership/role against stored fields.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
