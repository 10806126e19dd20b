package authz

// Permission names stored in the resource policy ledger. These are the unit
// of capability: a policy row maps (group, resource) to a set of them.
const (
	// Share object permissions.
	PermGetShare     = "share:get"
	PermSubmitShare  = "share:submit"
	PermApproveShare = "share:approve"
	PermRejectShare  = "share:reject"
	PermDeleteShare  = "share:delete"
	PermAddItem      = "share:add_item"
	PermRemoveItem   = "share:remove_item"
	PermRevokeItem   = "share:revoke_item"
	PermVerifyItem   = "share:verify_item"
	PermReapplyItem  = "share:reapply_item"
	PermListItems    = "share:list_items"

	// Dataset permissions.
	PermDatasetRead        = "dataset:read"
	PermDatasetUpdate      = "dataset:update"
	PermDatasetDelete      = "dataset:delete"
	PermDatasetTransfer    = "dataset:transfer_stewardship"
	PermDatasetTableRead   = "dataset:table_read"
	PermDatasetCreateShare = "dataset:create_share"
)

// RequesterPermissions is the capability set granted to the requesting group
// on a share resource at creation time.
var RequesterPermissions = []string{
	PermGetShare,
	PermSubmitShare,
	PermDeleteShare,
	PermAddItem,
	PermRemoveItem,
	PermListItems,
}

// ApproverPermissions is the capability set granted on a share resource to
// the dataset's owning group and its steward group. Stewardship transfer
// rewrites which group holds this set; the share rows themselves are never
// touched.
var ApproverPermissions = []string{
	PermGetShare,
	PermApproveShare,
	PermRejectShare,
	PermRevokeItem,
	PermVerifyItem,
	PermReapplyItem,
	PermListItems,
}

// DatasetOwnerPermissions is the capability set attached to the owning group
// on the dataset resource at creation.
var DatasetOwnerPermissions = []string{
	PermDatasetRead,
	PermDatasetUpdate,
	PermDatasetDelete,
	PermDatasetTransfer,
	PermDatasetCreateShare,
}

// StewardDatasetPermissions is the capability set a steward group holds on
// the dataset resource while stewardship lasts.
var StewardDatasetPermissions = []string{
	PermDatasetRead,
}

// StewardTablePermissions is the capability set a steward group holds on
// each catalog table of a stewarded dataset.
var StewardTablePermissions = []string{
	PermDatasetTableRead,
}
