// Package access maps project membership to the actions it permits.
package access

import "inkwell/api/internal/store"

type Role string
type Action string

const (
	RoleNone         Role = "none"
	RoleCollaborator Role = "collaborator"
	RoleOwner        Role = "owner"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionChat    Action = "chat"
	ActionManage  Action = "manage"
	ActionPublish Action = "publish"
)

// RoleFor derives the caller's role on a project from its membership fields.
func RoleFor(userID string, project store.Project) Role {
	if userID == project.OwnerID {
		return RoleOwner
	}
	for _, collaborator := range project.Collaborators {
		if collaborator == userID {
			return RoleCollaborator
		}
	}
	return RoleNone
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleCollaborator:
		return action == ActionRead || action == ActionWrite || action == ActionChat
	default:
		return false
	}
}
