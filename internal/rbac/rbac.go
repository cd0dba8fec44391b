// Package rbac defines the portal's two-role authorization model.
package rbac

type Role string
type Action string

const (
	// RolePrimary may approve files and request revisions for the company.
	RolePrimary Role = "primary"
	// RoleMember may view and comment only.
	RoleMember Role = "member"
)

const (
	ActionView    Action = "view"
	ActionComment Action = "comment"
	ActionApprove Action = "approve"
)

func Can(role Role, action Action) bool {
	switch role {
	case RolePrimary:
		return true
	case RoleMember:
		return action == ActionView || action == ActionComment
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RolePrimary, RoleMember:
		return Role(role)
	default:
		return RoleMember
	}
}
