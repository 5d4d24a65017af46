package rbac

// Role names. They are persisted on users and carried in access tokens.
const (
	RoleAdmin = "admin"
	RoleTeam  = "team"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func Valid(role string) bool { return role == RoleAdmin || role == RoleTeam }
