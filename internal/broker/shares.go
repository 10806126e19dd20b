package broker

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lakefabric/sharegate/pkg/audit"
	"github.com/lakefabric/sharegate/pkg/authz"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
	"github.com/lakefabric/sharegate/pkg/task"
)

// CreateShareRequest carries the parameters for a new share request.
type CreateShareRequest struct {
	DatasetURI     string
	EnvironmentURI string
	GroupURI       string // requesting group
	PrincipalID    string // group or consumption role receiving the grant
	PrincipalType  share.PrincipalType
	RequestPurpose string
	ItemURI        string // optional initial catalog table to include
}

// CreateShareObject opens a share request in Draft. At most one active share
// exists per (dataset, principal); a second request returns the existing
// share, adding the requested item to it when named. Creation attaches the
// requester capability set for the requesting group and the approver set for
// the dataset's owner and steward groups, all in the creating transaction.
func (b *Broker) CreateShareObject(actor share.Actor, req CreateShareRequest) (*store.ShareObject, error) {
	if req.GroupURI == "" {
		return nil, share.ErrRequiredParameter("groupUri")
	}
	if req.PrincipalID == "" {
		return nil, share.ErrRequiredParameter("principalId")
	}
	if req.PrincipalType == "" {
		return nil, share.ErrRequiredParameter("principalType")
	}
	if !actor.InGroup(req.GroupURI) {
		return nil, share.ErrUnauthorizedOperation("createShareObject",
			"caller is not a member of "+req.GroupURI)
	}

	if _, err := b.resolver.Resolve(req.EnvironmentURI, req.PrincipalID, req.PrincipalType); err != nil {
		return nil, err
	}

	ds, err := b.GetDataset(req.DatasetURI)
	if err != nil {
		return nil, err
	}

	existing, err := b.store.FindOpenShare(ds.URI, req.PrincipalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if req.ItemURI != "" {
			if _, err := b.addItem(existing, ds, req.ItemURI); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	so := &store.ShareObject{
		URI:            "shr_" + uuid.NewString(),
		DatasetURI:     ds.URI,
		EnvironmentURI: req.EnvironmentURI,
		GroupURI:       req.GroupURI,
		PrincipalID:    req.PrincipalID,
		PrincipalType:  req.PrincipalType,
		Owner:          actor.Username,
		Status:         share.StatusDraft,
		RequestPurpose: req.RequestPurpose,
	}

	policies := []store.PolicyAttachment{
		{Group: req.GroupURI, ResourceURI: so.URI, ResourceType: "share", Permissions: authz.RequesterPermissions},
		{Group: ds.AdminGroup, ResourceURI: so.URI, ResourceType: "share", Permissions: authz.ApproverPermissions},
	}
	if ds.Stewards != ds.AdminGroup {
		policies = append(policies, store.PolicyAttachment{
			Group: ds.Stewards, ResourceURI: so.URI, ResourceType: "share",
			Permissions: authz.ApproverPermissions,
		})
	}

	if err := b.store.CreateShareObject(so, policies); err != nil {
		return nil, err
	}

	if req.ItemURI != "" {
		if _, err := b.addItem(so, ds, req.ItemURI); err != nil {
			return nil, err
		}
	}

	b.recorder.Record(audit.EventShareCreate, actor.Username, so.URI, map[string]string{
		"dataset":   ds.URI,
		"group":     req.GroupURI,
		"principal": req.PrincipalID,
	})
	b.logger.Info("share created", "share", so.URI, "dataset", ds.URI, "group", req.GroupURI)
	return so, nil
}

// GetShareObject retrieves a share the caller may read.
func (b *Broker) GetShareObject(actor share.Actor, uri string) (*store.ShareObject, error) {
	so, err := b.getShare(uri)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionShareGet); err != nil {
		return nil, err
	}
	return so, nil
}

// SubmitShareObject moves a Draft or previously Rejected share to
// PendingApproval. A share with no items awaiting approval cannot be
// submitted.
func (b *Broker) SubmitShareObject(actor share.Actor, uri string) (*store.ShareObject, error) {
	so, err := b.getShare(uri)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionShareSubmit); err != nil {
		return nil, err
	}
	if !share.CanTransition(so.Status, share.StatusPendingApproval) {
		return nil, share.ErrInvalidShareState(uri, string(so.Status), string(share.StatusPendingApproval))
	}

	if err := b.store.SubmitShare(uri, so.Status); err != nil {
		if errors.Is(err, store.ErrNoSubmittableItems) {
			return nil, share.ErrUnauthorizedOperation("submitShareObject",
				"share has no items in a submittable state")
		}
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, share.ErrInvalidShareState(uri, string(so.Status), string(share.StatusPendingApproval))
		}
		return nil, err
	}

	b.recorder.Record(audit.EventShareSubmit, actor.Username, uri, nil)
	b.logger.Info("share submitted", "share", uri, "by", actor.Username)
	return b.getShare(uri)
}

// ApproveShareObject approves a pending share: every pending item moves to
// ShareApproved and one grant synchronization task per item is recorded with
// the decision and published after commit.
func (b *Broker) ApproveShareObject(ctx context.Context, actor share.Actor, uri string) (*store.ShareObject, error) {
	so, err := b.getShare(uri)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionShareApprove); err != nil {
		return nil, err
	}
	if !share.CanTransition(so.Status, share.StatusApproved) {
		return nil, share.ErrInvalidShareState(uri, string(so.Status), string(share.StatusApproved))
	}

	tasks, err := b.store.ApproveShare(uri, task.TypeGrant)
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, share.ErrInvalidShareState(uri, string(so.Status), string(share.StatusApproved))
		}
		return nil, err
	}
	if err := b.publishTasks(ctx, tasks); err != nil {
		return nil, err
	}

	b.recorder.Record(audit.EventShareApprove, actor.Username, uri, map[string]string{
		"items": strconv.Itoa(len(tasks)),
	})
	b.logger.Info("share approved", "share", uri, "by", actor.Username, "items", len(tasks))
	return b.getShare(uri)
}

// RejectShareObject rejects a pending share with a stated reason. Pending
// items move to ShareRejected; nothing reaches the external substrate.
func (b *Broker) RejectShareObject(actor share.Actor, uri, rejectPurpose string) (*store.ShareObject, error) {
	if rejectPurpose == "" {
		return nil, share.ErrRequiredParameter("rejectPurpose")
	}
	so, err := b.getShare(uri)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionShareReject); err != nil {
		return nil, err
	}
	if !share.CanTransition(so.Status, share.StatusRejected) {
		return nil, share.ErrInvalidShareState(uri, string(so.Status), string(share.StatusRejected))
	}

	if err := b.store.RejectShare(uri, rejectPurpose); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, share.ErrInvalidShareState(uri, string(so.Status), string(share.StatusRejected))
		}
		return nil, err
	}

	b.recorder.Record(audit.EventShareReject, actor.Username, uri, map[string]string{
		"reason": rejectPurpose,
	})
	b.logger.Info("share rejected", "share", uri, "by", actor.Username)
	return b.getShare(uri)
}

// DeleteShareObject soft-deletes a share and detaches its policies. Items
// that still hold or await a data-plane grant block the deletion; they must
// be revoked first.
func (b *Broker) DeleteShareObject(actor share.Actor, uri string) error {
	so, err := b.getShare(uri)
	if err != nil {
		return err
	}
	if err := b.require(actor, so.URI, authz.ActionShareDelete); err != nil {
		return err
	}

	if err := b.store.DeleteShare(uri, grantedItemStatuses); err != nil {
		var blocked *store.ItemsBlockDeletionError
		if errors.As(err, &blocked) {
			return share.ErrUnauthorizedOperation("deleteShareObject",
				"items "+strings.Join(blocked.ItemURIs, ", ")+" still hold or await grants and must be revoked first")
		}
		return err
	}

	b.recorder.Record(audit.EventShareDelete, actor.Username, uri, nil)
	b.logger.Info("share deleted", "share", uri, "by", actor.Username)
	return nil
}

// UpdateRequestPurpose updates the requester's stated purpose.
func (b *Broker) UpdateRequestPurpose(actor share.Actor, uri, purpose string) error {
	so, err := b.getShare(uri)
	if err != nil {
		return err
	}
	if err := b.require(actor, so.URI, authz.ActionShareSubmit); err != nil {
		return err
	}
	return b.store.UpdateRequestPurpose(uri, purpose)
}

// UpdateRejectPurpose updates the approver's rejection reason.
func (b *Broker) UpdateRejectPurpose(actor share.Actor, uri, purpose string) error {
	so, err := b.getShare(uri)
	if err != nil {
		return err
	}
	if err := b.require(actor, so.URI, authz.ActionShareReject); err != nil {
		return err
	}
	return b.store.UpdateRejectPurpose(uri, purpose)
}

// ListSharesInbox returns the shares awaiting the caller as an approver:
// requests against datasets owned or stewarded by the caller's groups.
func (b *Broker) ListSharesInbox(actor share.Actor) ([]*store.ShareObject, error) {
	return b.store.ListSharesInbox(actor.Groups)
}

// ListSharesOutbox returns the share requests the caller has sent.
func (b *Broker) ListSharesOutbox(actor share.Actor) ([]*store.ShareObject, error) {
	return b.store.ListSharesOutbox(actor.Username, actor.Groups)
}

// ListSharesByDataset returns all active shares against a dataset. This is
// an owner view, gated on reading the dataset.
func (b *Broker) ListSharesByDataset(actor share.Actor, datasetURI string) ([]*store.ShareObject, error) {
	if _, err := b.GetDataset(datasetURI); err != nil {
		return nil, err
	}
	if err := b.require(actor, datasetURI, authz.ActionDatasetRead); err != nil {
		return nil, err
	}
	return b.store.ListSharesByDataset(datasetURI)
}

// GetShareStatistics aggregates a share's items by lifecycle bucket.
func (b *Broker) GetShareStatistics(actor share.Actor, uri string) (*store.ShareStatistics, error) {
	so, err := b.getShare(uri)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionShareGet); err != nil {
		return nil, err
	}
	return b.store.GetShareStatistics(uri)
}

// UserRole describes the caller's relationship to a share.
type UserRole string

const (
	RoleApprover             UserRole = "Approvers"
	RoleRequester            UserRole = "Requesters"
	RoleApproverAndRequester UserRole = "ApproversAndRequesters"
	RoleNone                 UserRole = "NoPermission"
)

// ResolveUserRole computes the caller's role on a share from the current
// dataset ownership and stewardship, never from cached state: a stewardship
// transfer immediately changes who resolves as approver.
func (b *Broker) ResolveUserRole(actor share.Actor, so *store.ShareObject) (UserRole, error) {
	ds, err := b.GetDataset(so.DatasetURI)
	if err != nil {
		return RoleNone, err
	}

	approver := actor.InGroup(ds.AdminGroup) || actor.InGroup(ds.Stewards) || actor.Username == ds.Owner
	requester := actor.Username == so.Owner || actor.InGroup(so.GroupURI)

	switch {
	case approver && requester:
		return RoleApproverAndRequester, nil
	case approver:
		return RoleApprover, nil
	case requester:
		return RoleRequester, nil
	default:
		return RoleNone, nil
	}
}

// getShare retrieves a share or returns an ObjectNotFound domain error.
func (b *Broker) getShare(uri string) (*store.ShareObject, error) {
	so, err := b.store.GetShareObject(uri)
	if err != nil {
		return nil, err
	}
	if so == nil {
		return nil, share.ErrObjectNotFound("ShareObject", uri)
	}
	return so, nil
}
