package grants

import "github.com/lakefabric/sharegate/pkg/share"

// DriftState classifies the relationship between an item's stored status and
// the substrate's actual grant state. Verification reports drift; it never
// silently corrects it.
type DriftState string

const (
	// Consistent: stored status and substrate agree, or the item is mid-flight
	// and has no settled expectation yet.
	Consistent DriftState = "Consistent"

	// NeedsReapply: the item sits in a failed state that a reapply can
	// reconcile (grant and revoke are idempotent, so re-issuing is safe
	// whether or not the substrate partially applied the operation).
	NeedsReapply DriftState = "NeedsReapply"

	// NeedsManualReview: stored status claims a settled outcome the substrate
	// contradicts. Auto-correcting would hide the discrepancy from operators.
	NeedsManualReview DriftState = "NeedsManualReview"
)

// Classify maps (stored status, substrate grant present) to a drift state.
func Classify(status share.ItemStatus, exists bool) DriftState {
	switch status {
	case share.ItemShared:
		if exists {
			return Consistent
		}
		return NeedsManualReview
	case share.ItemRevoked:
		if !exists {
			return Consistent
		}
		return NeedsManualReview
	case share.ItemShareFailed, share.ItemRevokeFailed:
		return NeedsReapply
	case share.ItemPendingApproval, share.ItemShareRejected:
		// Never granted; a grant in the substrate is unexplained.
		if exists {
			return NeedsManualReview
		}
		return Consistent
	default:
		// In-flight states have no settled expectation.
		return Consistent
	}
}
