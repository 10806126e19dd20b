package broker

import (
	"github.com/lakefabric/sharegate/pkg/audit"
	"github.com/lakefabric/sharegate/pkg/authz"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
)

// TransferStewardship reassigns the dataset's delegated approver group. The
// incoming group gains steward capabilities on the dataset, its tables, and
// every open share, while the outgoing group loses them, in one transaction:
// there is no interleaving in which a caller observes half-moved approval
// rights. Transferring to the owning group simply ends the delegation; the
// owner's own capabilities are never touched.
func (b *Broker) TransferStewardship(actor share.Actor, datasetURI, newStewards string) (*store.Dataset, error) {
	if newStewards == "" {
		return nil, share.ErrRequiredParameter("newStewards")
	}
	ds, err := b.GetDataset(datasetURI)
	if err != nil {
		return nil, err
	}
	if err := b.require(actor, ds.URI, authz.ActionDatasetTransfer); err != nil {
		return nil, err
	}
	if ds.Stewards == newStewards {
		return ds, nil
	}

	err = b.store.TransferStewardship(datasetURI, newStewards, store.StewardshipGrants{
		DatasetPermissions:  authz.StewardDatasetPermissions,
		TablePermissions:    authz.StewardTablePermissions,
		ApproverPermissions: authz.ApproverPermissions,
	})
	if err != nil {
		return nil, err
	}

	b.recorder.Record(audit.EventStewardshipTransfer, actor.Username, datasetURI, map[string]string{
		"from": ds.Stewards,
		"to":   newStewards,
	})
	b.logger.Info("stewardship transferred",
		"dataset", datasetURI,
		"from", ds.Stewards,
		"to", newStewards,
		"by", actor.Username,
	)
	return b.GetDataset(datasetURI)
}
