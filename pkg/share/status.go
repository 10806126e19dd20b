// Package share defines the domain types for the share lifecycle: share and
// item statuses, the legal transition tables, the acting principal, and the
// domain error taxonomy. The state tables are data, not code; every status
// write elsewhere in the system is gated on CanTransition / CanItemTransition.
package share

// Status is the lifecycle state of a ShareObject.
type Status string

const (
	StatusDraft                Status = "Draft"
	StatusPendingApproval      Status = "PendingApproval"
	StatusApproved             Status = "Approved"
	StatusRejected             Status = "Rejected"
	StatusProcessed            Status = "Processed"
	StatusPendingApproveRevoke Status = "PendingApproveRevoke"
	StatusRevoked              Status = "Revoked"
	StatusDeleted              Status = "Deleted"
)

// ItemStatus is the lifecycle state of one ShareObjectItem. Grant and revoke
// sides are symmetric: *Approved marks the decision, the worker moves the item
// to the terminal success/failure outcome.
type ItemStatus string

const (
	ItemPendingApproval      ItemStatus = "PendingApproval"
	ItemShareApproved        ItemStatus = "ShareApproved"
	ItemShareRejected        ItemStatus = "ShareRejected"
	ItemShared               ItemStatus = "Shared"
	ItemShareFailed          ItemStatus = "ShareFailed"
	ItemPendingApproveRevoke ItemStatus = "PendingApproveRevoke"
	ItemRevokeApproved       ItemStatus = "RevokeApproved"
	ItemRevoked              ItemStatus = "Revoked"
	ItemRevokeFailed         ItemStatus = "RevokeFailed"
)

// HealthStatus records the outcome of the last drift verification for an item.
type HealthStatus string

const (
	HealthHealthy       HealthStatus = "Healthy"
	HealthPendingVerify HealthStatus = "PendingVerify"
	HealthUnhealthy     HealthStatus = "Unhealthy"
)

// PrincipalType identifies what kind of principal receives access.
type PrincipalType string

const (
	PrincipalGroup           PrincipalType = "Group"
	PrincipalConsumptionRole PrincipalType = "ConsumptionRole"
	PrincipalOther           PrincipalType = "Other"
)

// shareTransitions enumerates every legal ShareObject status edge.
var shareTransitions = map[Status][]Status{
	StatusDraft:                {StatusPendingApproval, StatusDeleted},
	StatusPendingApproval:      {StatusApproved, StatusRejected},
	StatusApproved:             {StatusProcessed},
	StatusRejected:             {StatusPendingApproval, StatusDeleted},
	StatusProcessed:            {StatusPendingApproveRevoke, StatusRevoked, StatusDeleted},
	StatusPendingApproveRevoke: {StatusRevoked, StatusProcessed},
	StatusRevoked:              {StatusDeleted},
}

// itemTransitions enumerates every legal ShareObjectItem status edge.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPendingApproval:      {ItemShareApproved, ItemShareRejected},
	ItemShareRejected:        {ItemPendingApproval},
	ItemShareApproved:        {ItemShared, ItemShareFailed},
	ItemShared:               {ItemPendingApproveRevoke},
	ItemShareFailed:          {ItemShareApproved},
	ItemPendingApproveRevoke: {ItemRevokeApproved},
	ItemRevokeApproved:       {ItemRevoked, ItemRevokeFailed},
	ItemRevokeFailed:         {ItemPendingApproveRevoke},
}

// CanTransition reports whether a ShareObject may move from one status to
// another. Unknown statuses have no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, next := range shareTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanItemTransition reports whether a ShareObjectItem may move from one
// status to another.
func CanItemTransition(from, to ItemStatus) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsItemTerminal reports whether an item status counts as a settled outcome
// for the current transition. Failed states are terminal for share-level
// completion purposes; they remain individually recoverable via reapply.
func IsItemTerminal(s ItemStatus) bool {
	switch s {
	case ItemShared, ItemShareFailed, ItemShareRejected, ItemRevoked, ItemRevokeFailed:
		return true
	}
	return false
}

// IsItemRevocable reports whether an item is eligible for a revoke request.
func IsItemRevocable(s ItemStatus) bool {
	return s == ItemShared
}

// IsItemFailed reports whether an item sits in a failure state recoverable
// via reapply.
func IsItemFailed(s ItemStatus) bool {
	return s == ItemShareFailed || s == ItemRevokeFailed
}

// Actor is the authenticated caller of a broker operation. It is passed
// explicitly into every operation; there is no ambient request state.
type Actor struct {
	Username string
	Groups   []string
}

// InGroup reports whether the actor belongs to the named group.
func (a Actor) InGroup(group string) bool {
	for _, g := range a.Groups {
		if g == group {
			return true
		}
	}
	return false
}
