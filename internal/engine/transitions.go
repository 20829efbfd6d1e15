package engine

import "draftline/internal/domain"

// edge is one permitted transition of the workflow state machine: who may
// take it and whether they must be the project's current assignee.
type edge struct {
	to        domain.ContentStatus
	roles     []domain.Role
	ownerOnly bool
}

var producerRoles = []domain.Role{domain.RoleDesigner, domain.RoleEditor}
var leadRoles = []domain.Role{domain.RoleMarketingLead}

// transitions is the declarative state x role x ownership table. UI layers
// reflect engine-reported affordances; they never re-implement these rules.
var transitions = map[domain.ContentStatus][]edge{
	domain.StatusInitiated: {
		{to: domain.StatusInEditing, roles: producerRoles, ownerOnly: true},
		// Delegation keeps the project in Initiated while reassigning it.
		{to: domain.StatusInitiated, roles: producerRoles, ownerOnly: true},
	},
	domain.StatusInEditing: {
		{to: domain.StatusInReview, roles: producerRoles, ownerOnly: true},
		{to: domain.StatusCancelled, roles: producerRoles, ownerOnly: true},
	},
	domain.StatusReturned: {
		{to: domain.StatusInReview, roles: producerRoles, ownerOnly: true},
		{to: domain.StatusCancelled, roles: producerRoles, ownerOnly: true},
	},
	domain.StatusInReview: {
		{to: domain.StatusApproved, roles: leadRoles},
		{to: domain.StatusReturned, roles: leadRoles},
		{to: domain.StatusRejected, roles: leadRoles},
	},
}

// authorizeTransition checks state legality first, then role and ownership.
// An edge missing from the table is IllegalTransitionError; an existing edge
// the actor may not take is ForbiddenError. Neither mutates anything.
func authorizeTransition(p domain.ContentProject, to domain.ContentStatus, actor domain.Actor) error {
	var match *edge
	for i, e := range transitions[p.Status] {
		if e.to == to {
			match = &transitions[p.Status][i]
			break
		}
	}
	if match == nil {
		return IllegalTransitionError{From: p.Status, To: to}
	}
	if !roleAllowed(match.roles, actor.Role) {
		return ForbiddenError{ActorID: actor.ID, Action: "move project " + p.ID + " to " + string(to)}
	}
	if match.ownerOnly && p.CreatorID != actor.ID {
		return ForbiddenError{ActorID: actor.ID, Action: "move project " + p.ID + " to " + string(to)}
	}
	return nil
}

func roleAllowed(roles []domain.Role, r domain.Role) bool {
	for _, allowed := range roles {
		if allowed == r {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses the actor could move the project to,
// for UI affordance reporting.
func NextStatuses(p domain.ContentProject, actor domain.Actor) []domain.ContentStatus {
	var res []domain.ContentStatus
	for _, e := range transitions[p.Status] {
		if e.to == p.Status {
			continue
		}
		if !roleAllowed(e.roles, actor.Role) {
			continue
		}
		if e.ownerOnly && p.CreatorID != actor.ID {
			continue
		}
		res = append(res, e.to)
	}
	return res
}
