package domain

// Roles carried in JWT claims. The broadcast and sweep endpoints are
// restricted to RoleAdmin.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
