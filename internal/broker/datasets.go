package broker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lakefabric/sharegate/pkg/audit"
	"github.com/lakefabric/sharegate/pkg/authz"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
)

// CreateDatasetRequest carries the parameters for dataset registration.
type CreateDatasetRequest struct {
	Name           string
	EnvironmentURI string
	AwsAccountID   string
	Region         string
	AdminGroup     string
	Stewards       string // optional; defaults to AdminGroup
}

// CreateDataset registers a data asset and attaches its capability policies:
// the owning group receives the full owner set on the dataset, and a distinct
// steward group receives the steward set. The row and the policies commit
// together.
func (b *Broker) CreateDataset(actor share.Actor, req CreateDatasetRequest) (*store.Dataset, error) {
	if req.Name == "" {
		return nil, share.ErrRequiredParameter("name")
	}
	if req.AdminGroup == "" {
		return nil, share.ErrRequiredParameter("adminGroup")
	}
	if !actor.InGroup(req.AdminGroup) {
		return nil, share.ErrUnauthorizedOperation("createDataset",
			"caller is not a member of "+req.AdminGroup)
	}

	stewards := req.Stewards
	if stewards == "" {
		stewards = req.AdminGroup
	}

	ds := &store.Dataset{
		URI:            "ds_" + uuid.NewString(),
		Name:           req.Name,
		EnvironmentURI: req.EnvironmentURI,
		AwsAccountID:   req.AwsAccountID,
		Region:         req.Region,
		AdminGroup:     req.AdminGroup,
		Stewards:       stewards,
		Owner:          actor.Username,
	}

	policies := []store.PolicyAttachment{
		{Group: ds.AdminGroup, ResourceURI: ds.URI, ResourceType: "dataset", Permissions: authz.DatasetOwnerPermissions},
	}
	if ds.Stewards != ds.AdminGroup {
		policies = append(policies, store.PolicyAttachment{
			Group: ds.Stewards, ResourceURI: ds.URI, ResourceType: "dataset",
			Permissions: authz.StewardDatasetPermissions,
		})
	}

	if err := b.store.CreateDataset(ds, policies); err != nil {
		return nil, err
	}

	b.logger.Info("dataset created", "dataset", ds.URI, "name", ds.Name, "admin_group", ds.AdminGroup)
	return ds, nil
}

// GetDataset retrieves a dataset by URI.
func (b *Broker) GetDataset(uri string) (*store.Dataset, error) {
	ds, err := b.store.GetDataset(uri)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, share.ErrObjectNotFound("Dataset", uri)
	}
	return ds, nil
}

// ListDatasets returns every registered dataset.
func (b *Broker) ListDatasets() ([]*store.Dataset, error) {
	return b.store.ListDatasets()
}

// AddDatasetTable registers a catalog table under a dataset. A distinct
// steward group receives its table capability so stewards can act on the
// table without owner membership.
func (b *Broker) AddDatasetTable(actor share.Actor, datasetURI, name string) (*store.DatasetTable, error) {
	if name == "" {
		return nil, share.ErrRequiredParameter("name")
	}
	ds, err := b.GetDataset(datasetURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, ds.URI, authz.ActionDatasetUpdate); err != nil {
		return nil, err
	}

	tbl := &store.DatasetTable{
		URI:        "tbl_" + uuid.NewString(),
		DatasetURI: ds.URI,
		Name:       name,
	}
	if err := b.store.AddDatasetTable(tbl); err != nil {
		return nil, err
	}
	if ds.Stewards != ds.AdminGroup {
		if err := b.store.AttachResourcePolicy(ds.Stewards, tbl.URI, "table", authz.StewardTablePermissions); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// ListDatasetTables returns the catalog tables of a dataset.
func (b *Broker) ListDatasetTables(datasetURI string) ([]*store.DatasetTable, error) {
	if _, err := b.GetDataset(datasetURI); err != nil {
		return nil, err
	}
	return b.store.ListDatasetTables(datasetURI)
}

// DeleteDataset removes a dataset with everything hanging off it: shares,
// items, policies, and tables. Items still holding or awaiting a data-plane
// grant block the deletion; they must be revoked first.
func (b *Broker) DeleteDataset(actor share.Actor, datasetURI string) error {
	ds, err := b.GetDataset(datasetURI)
	if err != nil {
		return err
	}
	if err := b.require(actor, ds.URI, authz.ActionDatasetDelete); err != nil {
		return err
	}

	blockers, err := b.store.ListDatasetItemsInStatus(datasetURI, grantedItemStatuses...)
	if err != nil {
		return err
	}
	if len(blockers) > 0 {
		uris := make([]string, len(blockers))
		for i, it := range blockers {
			uris[i] = it.URI
		}
		return share.ErrUnauthorizedOperation("deleteDataset",
			fmt.Sprintf("items still hold or await grants and must be revoked first: %s",
				strings.Join(uris, ", ")))
	}

	if err := b.store.DeleteDatasetCascade(datasetURI); err != nil {
		return err
	}
	b.recorder.Record(audit.EventDatasetDelete, actor.Username, datasetURI, map[string]string{
		"name": ds.Name,
	})
	b.logger.Info("dataset deleted", "dataset", datasetURI, "name", ds.Name)
	return nil
}

// grantedItemStatuses are the item states that represent a live or in-flight
// data-plane grant. Items in these states block share and dataset deletion.
var grantedItemStatuses = []share.ItemStatus{
	share.ItemShared,
	share.ItemShareApproved,
	share.ItemPendingApproveRevoke,
	share.ItemRevokeApproved,
	share.ItemRevokeFailed,
}
