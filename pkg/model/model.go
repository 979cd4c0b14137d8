// Package model defines the core domain types for ticketbot.
package model

// Role represents who is acting on a ticket or command.
type Role int

const (
	RoleMember      Role = iota // Any guild member, can only open a ticket
	RoleTicketOwner             // Tagged owner of the ticket channel being acted on
	RoleOwner                   // Bot owner listed in config, runs text commands
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleTicketOwner:
		return "ticket_owner"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// ParseRole converts a string to a Role.
func ParseRole(s string) Role {
	switch s {
	case "owner":
		return RoleOwner
	case "ticket_owner":
		return RoleTicketOwner
	default:
		return RoleMember
	}
}

// Valid returns true if the role is a recognised value.
func (r Role) Valid() bool {
	return r >= RoleMember && r <= RoleOwner
}

// Permission represents a specific action that can be checked against a role.
type Permission int

const (
	PermCreateTicket Permission = iota
	PermControlTicket
	PermSetup
	PermDiagnostics
	PermSwapSecret
)
