// ABOUTME: Decides which connections receive a freshly persisted message
// ABOUTME: Pure routing over read-only presence and group views

// Package dispatch computes delivery plans for new messages.
//
// Everyone viewing the conversation gets the in-conversation broadcast. The
// recipient's other connections get a side-channel notification only when
// the recipient is online but not currently viewing the conversation.
package dispatch

import "slices"

// PresenceView is the read side of the presence registry.
type PresenceView interface {
	ConnectionsFor(memberID string) []string
}

// GroupView is the read side of the group tracker.
type GroupView interface {
	ConnectionsInGroup(groupName string) []string
	HasMember(groupName, memberID string) bool
}

// Plan lists the delivery targets for one message.
type Plan struct {
	// Broadcast holds the group's connections.
	Broadcast []string
	// SideChannel holds the recipient's connections when the recipient is
	// online but not in the group.
	SideChannel []string
	// RecipientInGroup is true when the recipient was viewing the
	// conversation at routing time.
	RecipientInGroup bool
}

// Targets returns the number of deliveries the plan describes.
func (p Plan) Targets() int {
	return len(p.Broadcast) + len(p.SideChannel)
}

// Route builds the delivery plan for a message to recipientID in groupName.
// Both lists are sorted and free of duplicates.
func Route(recipientID, groupName string, presence PresenceView, groups GroupView) Plan {
	plan := Plan{
		Broadcast:        normalize(groups.ConnectionsInGroup(groupName)),
		RecipientInGroup: groups.HasMember(groupName, recipientID),
	}
	if !plan.RecipientInGroup {
		plan.SideChannel = normalize(presence.ConnectionsFor(recipientID))
	}
	if plan.SideChannel == nil {
		plan.SideChannel = []string{}
	}
	return plan
}

func normalize(ids []string) []string {
	out := slices.Clone(ids)
	if out == nil {
		return []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
