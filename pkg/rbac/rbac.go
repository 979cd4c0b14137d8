// Package rbac provides role-based access control checks.
package rbac

import "github.com/NicolasHaas/ticketbot/pkg/model"

// permissionMatrix maps roles to their allowed permissions.
var permissionMatrix = map[model.Role]map[model.Permission]bool{
	model.RoleOwner: {
		model.PermCreateTicket: true,
		model.PermSetup:        true,
		model.PermDiagnostics:  true,
		model.PermSwapSecret:   true,
	},
	model.RoleTicketOwner: {
		model.PermCreateTicket:  true,
		model.PermControlTicket: true,
	},
	model.RoleMember: {
		model.PermCreateTicket: true,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role model.Role, perm model.Permission) bool {
	perms, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return perms[perm]
}

// RequirePermission returns an error message if the role lacks the permission, or empty string if allowed.
func RequirePermission(role model.Role, perm model.Permission) string {
	if HasPermission(role, perm) {
		return ""
	}
	return "permission denied: " + permName(perm) + " requires " + requiredRole(perm)
}

func permName(p model.Permission) string {
	switch p {
	case model.PermCreateTicket:
		return "create_ticket"
	case model.PermControlTicket:
		return "control_ticket"
	case model.PermSetup:
		return "setup"
	case model.PermDiagnostics:
		return "diagnostics"
	case model.PermSwapSecret:
		return "swap_secret"
	default:
		return "unknown"
	}
}

func requiredRole(p model.Permission) string {
	if p == model.PermControlTicket {
		return "the ticket owner"
	}
	return "a bot owner"
}
