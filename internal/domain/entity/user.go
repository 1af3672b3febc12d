package entity

import "time"

// Role is the portal role of a user, resolved from the profile at request time
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleFinance    Role = "finance"
	RoleOperations Role = "operations"
	RoleSubmitter  Role = "submitter"
	RoleViewer     Role = "viewer"
)

var validRoles = map[Role]bool{
	RoleAdmin:      true,
	RoleManager:    true,
	RoleFinance:    true,
	RoleOperations: true,
	RoleSubmitter:  true,
	RoleViewer:     true,
}

// IsValid returns true if the role is a known portal role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// User represents a portal user profile
type User struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Email                string    `json:"email,omitempty"`
	Role                 Role      `json:"role"`
	DepartmentID         string    `json:"department_id,omitempty"`
	ProgramIDs           []string  `json:"program_ids,omitempty"`
	OperationsRoomMember bool      `json:"operations_room_member"`
	LarkOpenID           string    `json:"lark_open_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Actor returns the acting identity for this user
func (u *User) Actor() Actor {
	return Actor{
		ID:                   u.ID,
		Role:                 u.Role,
		DepartmentID:         u.DepartmentID,
		ProgramIDs:           append([]string(nil), u.ProgramIDs...),
		OperationsRoomMember: u.OperationsRoomMember,
	}
}

// Actor is the caller of an operation. It is trusted input, validated upstream.
type Actor struct {
	ID                   string   `json:"id"`
	Role                 Role     `json:"role"`
	DepartmentID         string   `json:"department_id,omitempty"`
	ProgramIDs           []string `json:"program_ids,omitempty"`
	OperationsRoomMember bool     `json:"operations_room_member"`
}

// IsAdmin reports whether the actor holds the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
