package authz

// Action constants for every guarded broker operation.
const (
	ActionShareGet     = "share:get"
	ActionShareSubmit  = "share:submit"
	ActionShareApprove = "share:approve"
	ActionShareReject  = "share:reject"
	ActionShareDelete  = "share:delete"
	ActionItemAdd      = "item:add"
	ActionItemRemove   = "item:remove"
	ActionItemRevoke   = "item:revoke"
	ActionItemVerify   = "item:verify"
	ActionItemReapply  = "item:reapply"
	ActionItemList     = "item:list"

	ActionDatasetRead        = "dataset:read"
	ActionDatasetUpdate      = "dataset:update"
	ActionDatasetDelete      = "dataset:delete"
	ActionDatasetTransfer    = "dataset:transfer"
	ActionDatasetCreateShare = "dataset:create_share"
)

// requiredPermission maps each action to the permission it demands on the
// target resource. Operations declare what they need as data; the guard is
// the single place that evaluates it. Unknown actions are rejected
// (fail-closed).
var requiredPermission = map[string]string{
	ActionShareGet:     PermGetShare,
	ActionShareSubmit:  PermSubmitShare,
	ActionShareApprove: PermApproveShare,
	ActionShareReject:  PermRejectShare,
	ActionShareDelete:  PermDeleteShare,
	ActionItemAdd:      PermAddItem,
	ActionItemRemove:   PermRemoveItem,
	ActionItemRevoke:   PermRevokeItem,
	ActionItemVerify:   PermVerifyItem,
	ActionItemReapply:  PermReapplyItem,
	ActionItemList:     PermListItems,

	ActionDatasetRead:        PermDatasetRead,
	ActionDatasetUpdate:      PermDatasetUpdate,
	ActionDatasetDelete:      PermDatasetDelete,
	ActionDatasetTransfer:    PermDatasetTransfer,
	ActionDatasetCreateShare: PermDatasetCreateShare,
}

// RequiredPermission returns the permission an action demands, and whether
// the action is known.
func RequiredPermission(action string) (string, bool) {
	perm, ok := requiredPermission[action]
	return perm, ok
}

// AllActions returns every registered action string, useful for tests and
// documentation.
func AllActions() []string {
	actions := make([]string, 0, len(requiredPermission))
	for a := range requiredPermission {
		actions = append(actions, a)
	}
	return actions
}
