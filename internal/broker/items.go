package broker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lakefabric/sharegate/pkg/audit"
	"github.com/lakefabric/sharegate/pkg/authz"
	"github.com/lakefabric/sharegate/pkg/grants"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
	"github.com/lakefabric/sharegate/pkg/task"
)

// itemMutableStatuses are the share states in which the item set may change.
// Rejected is included so a requester can amend and resubmit.
var itemMutableStatuses = map[share.Status]bool{
	share.StatusDraft:           true,
	share.StatusPendingApproval: true,
	share.StatusRejected:        true,
}

// AddSharedItem adds a catalog table to a Draft or PendingApproval share.
// Adding a table already present returns the existing item row unchanged.
func (b *Broker) AddSharedItem(actor share.Actor, shareURI, itemURI string) (*store.ShareObjectItem, error) {
	if itemURI == "" {
		return nil, share.ErrRequiredParameter("itemUri")
	}
	so, err := b.getShare(shareURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionItemAdd); err != nil {
		return nil, err
	}
	if !itemMutableStatuses[so.Status] {
		return nil, share.ErrUnauthorizedOperation("addSharedItem",
			"items can only be added while the share is Draft or PendingApproval")
	}

	ds, err := b.GetDataset(so.DatasetURI)
	if err != nil {
		return nil, err
	}
	return b.addItem(so, ds, itemURI)
}

// addItem validates the catalog table and inserts the item row. Shared by
// AddSharedItem and share creation with an initial item.
func (b *Broker) addItem(so *store.ShareObject, ds *store.Dataset, itemURI string) (*store.ShareObjectItem, error) {
	tbl, err := b.store.GetDatasetTable(itemURI)
	if err != nil {
		return nil, err
	}
	if tbl == nil || tbl.DatasetURI != ds.URI {
		return nil, share.ErrObjectNotFound("DatasetTable", itemURI)
	}

	existing, err := b.store.FindShareItem(so.URI, itemURI)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Re-adding a previously rejected table revives it for the next
		// submission round.
		if existing.Status == share.ItemShareRejected {
			if _, err := b.store.UpdateItemStatus(existing.URI,
				share.ItemShareRejected, share.ItemPendingApproval); err != nil {
				return nil, err
			}
			return b.getItem(existing.URI)
		}
		return existing, nil
	}

	it := &store.ShareObjectItem{
		URI:          "itm_" + uuid.NewString(),
		ShareURI:     so.URI,
		ItemURI:      itemURI,
		ItemType:     "DatasetTable",
		ItemName:     tbl.Name,
		Status:       share.ItemPendingApproval,
		HealthStatus: share.HealthPendingVerify,
	}
	if err := b.store.AddShareItem(it); err != nil {
		return nil, err
	}
	return it, nil
}

// RemoveSharedItem deletes an item row from a share. Items are removable
// before any grant exists (PendingApproval, ShareRejected, ShareFailed while
// the share is still mutable) and after revocation completes (Revoked, in any
// share state). A Shared item must be revoked first.
func (b *Broker) RemoveSharedItem(actor share.Actor, itemURI string) error {
	it, err := b.getItem(itemURI)
	if err != nil {
		return err
	}
	so, err := b.getShare(it.ShareURI)
	if err != nil {
		return err
	}
	if err := b.require(actor, so.URI, authz.ActionItemRemove); err != nil {
		return err
	}

	removable := []share.ItemStatus{share.ItemRevoked}
	if itemMutableStatuses[so.Status] {
		removable = append(removable,
			share.ItemPendingApproval, share.ItemShareRejected, share.ItemShareFailed)
	}
	ok, err := b.store.RemoveShareItem(itemURI, removable...)
	if err != nil {
		return err
	}
	if !ok {
		if it.Status == share.ItemShared {
			return share.ErrUnauthorizedOperation("removeSharedItem",
				"item is shared and must be revoked first")
		}
		return share.ErrUnauthorizedOperation("removeSharedItem",
			"item in status "+string(it.Status)+" cannot be removed")
	}
	return nil
}

// RevokeItems marks the named Shared items for revocation, all-or-nothing,
// and publishes one revoke task per item after the decision commits. When
// every granted item of the share is covered the share itself moves to
// PendingApproveRevoke; a partial revoke leaves it Processed.
func (b *Broker) RevokeItems(ctx context.Context, actor share.Actor, shareURI string, itemURIs []string) (*store.ShareObject, error) {
	if len(itemURIs) == 0 {
		return nil, share.ErrRequiredParameter("itemUris")
	}
	so, err := b.getShare(shareURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionItemRevoke); err != nil {
		return nil, err
	}

	tasks, err := b.store.RevokeItems(shareURI, itemURIs, task.TypeRevoke)
	if err != nil {
		var ineligible *store.ItemNotEligibleError
		if errors.As(err, &ineligible) {
			return nil, share.ErrUnauthorizedOperation("revokeItems",
				"item "+ineligible.ItemURI+" is not in a revocable state")
		}
		return nil, err
	}
	if err := b.publishTasks(ctx, tasks); err != nil {
		return nil, err
	}

	b.recorder.Record(audit.EventItemRevoke, actor.Username, shareURI, map[string]string{
		"items": strings.Join(itemURIs, ","),
	})
	b.logger.Info("items marked for revoke", "share", shareURI, "items", len(itemURIs), "by", actor.Username)
	return b.getShare(shareURI)
}

// VerificationResult reports one item's drift classification.
type VerificationResult struct {
	ItemURI string
	Status  share.ItemStatus
	Drift   grants.DriftState
}

// VerifyItems compares each item's stored status against the substrate's
// actual grant state and records the resulting health. Drift is reported,
// never corrected: a reapply or manual review follows from the report.
func (b *Broker) VerifyItems(ctx context.Context, actor share.Actor, shareURI string, itemURIs []string) ([]VerificationResult, error) {
	so, err := b.getShare(shareURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionItemVerify); err != nil {
		return nil, err
	}
	ds, err := b.GetDataset(so.DatasetURI)
	if err != nil {
		return nil, err
	}

	if len(itemURIs) == 0 {
		items, err := b.store.ListShareItems(shareURI)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			itemURIs = append(itemURIs, it.URI)
		}
	}

	now := time.Now()
	results := make([]VerificationResult, 0, len(itemURIs))
	for _, uri := range itemURIs {
		it, err := b.getItem(uri)
		if err != nil {
			return nil, err
		}
		if it.ShareURI != shareURI {
			return nil, share.ErrObjectNotFound("ShareObjectItem", uri)
		}

		exists, err := b.client.Exists(ctx, grants.Grant{
			Principal:   so.PrincipalID,
			ResourceURI: it.ItemURI,
			AccountID:   ds.AwsAccountID,
			Region:      ds.Region,
		})
		if err != nil {
			return nil, err
		}

		drift := grants.Classify(it.Status, exists)
		health := share.HealthHealthy
		if drift != grants.Consistent {
			health = share.HealthUnhealthy
		}
		if err := b.store.UpdateItemHealth(it.URI, health, now); err != nil {
			return nil, err
		}
		results = append(results, VerificationResult{ItemURI: it.URI, Status: it.Status, Drift: drift})
	}

	b.recorder.Record(audit.EventItemVerify, actor.Username, shareURI, map[string]string{
		"items": strconv.Itoa(len(results)),
	})
	return results, nil
}

// ReapplyItems re-enqueues synchronization for items stuck in ShareFailed or
// RevokeFailed. Items past the attempt limit are flagged Unhealthy for manual
// review instead; the returned result names them.
func (b *Broker) ReapplyItems(ctx context.Context, actor share.Actor, shareURI string, itemURIs []string) (*store.ReapplyResult, error) {
	if len(itemURIs) == 0 {
		return nil, share.ErrRequiredParameter("itemUris")
	}
	so, err := b.getShare(shareURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionItemReapply); err != nil {
		return nil, err
	}

	res, err := b.store.ReapplyItems(shareURI, itemURIs, task.TypeGrant, task.TypeRevoke, b.maxReapplyAttempts)
	if err != nil {
		var ineligible *store.ItemNotEligibleError
		if errors.As(err, &ineligible) {
			return nil, share.ErrUnauthorizedOperation("reapplyItems",
				"item "+ineligible.ItemURI+" is not in a failed state")
		}
		return nil, err
	}
	if err := b.publishTasks(ctx, res.Tasks); err != nil {
		return nil, err
	}

	b.recorder.Record(audit.EventItemReapply, actor.Username, shareURI, map[string]string{
		"requeued": strconv.Itoa(len(res.Tasks)),
		"flagged":  strconv.Itoa(len(res.Flagged)),
	})
	return res, nil
}

// ListShareItems returns the items of a share the caller may read.
func (b *Broker) ListShareItems(actor share.Actor, shareURI string) ([]*store.ShareObjectItem, error) {
	so, err := b.getShare(shareURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionItemList); err != nil {
		return nil, err
	}
	return b.store.ListShareItems(shareURI)
}

// ShareableObject describes one catalog table of the share's dataset and, if
// present, the item row covering it in this share.
type ShareableObject struct {
	TableURI   string
	TableName  string
	ItemRowURI string           // empty when the table is not in the share
	Status     share.ItemStatus // empty when the table is not in the share
}

// ListShareableObjects lists the dataset's tables merged with the share's
// items. With revocableOnly, only tables whose item currently holds a grant
// are returned, which is the candidate set for a revoke request.
func (b *Broker) ListShareableObjects(actor share.Actor, shareURI string, revocableOnly bool) ([]ShareableObject, error) {
	so, err := b.getShare(shareURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionItemList); err != nil {
		return nil, err
	}

	tables, err := b.store.ListDatasetTables(so.DatasetURI)
	if err != nil {
		return nil, err
	}
	items, err := b.store.ListShareItems(shareURI)
	if err != nil {
		return nil, err
	}
	byTable := make(map[string]*store.ShareObjectItem, len(items))
	for _, it := range items {
		byTable[it.ItemURI] = it
	}

	var out []ShareableObject
	for _, tbl := range tables {
		obj := ShareableObject{TableURI: tbl.URI, TableName: tbl.Name}
		if it, ok := byTable[tbl.URI]; ok {
			obj.ItemRowURI = it.URI
			obj.Status = it.Status
		}
		if revocableOnly && !share.IsItemRevocable(obj.Status) {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

// ResolveSharedItem returns the item row for a catalog object within a share.
func (b *Broker) ResolveSharedItem(actor share.Actor, shareURI, itemURI string) (*store.ShareObjectItem, error) {
	so, err := b.getShare(shareURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, so.URI, authz.ActionItemList); err != nil {
		return nil, err
	}
	it, err := b.store.FindShareItem(shareURI, itemURI)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, share.ErrObjectNotFound("ShareObjectItem", itemURI)
	}
	return it, nil
}

// getItem retrieves an item row or returns an ObjectNotFound domain error.
func (b *Broker) getItem(uri string) (*store.ShareObjectItem, error) {
	it, err := b.store.GetShareItem(uri)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, share.ErrObjectNotFound("ShareObjectItem", uri)
	}
	return it, nil
}
