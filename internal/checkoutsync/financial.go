package checkoutsync

import "github.com/smallbiznis/cartloop/internal/payment/domain"

const (
	financialPaid              = "paid"
	financialRefunded          = "refunded"
	financialPartiallyRefunded = "partially_refunded"
	financialPending           = "pending"
)

// FinancialStatus maps a payment's local state to the remote order's
// financial status. Unknown states map to "".
func FinancialStatus(p *domain.Payment) string {
	switch {
	case p.CompletedAt != nil && completedStatus(p.Status):
		return financialPaid
	case p.Status == domain.StatusRefunded:
		if p.Total != 0 {
			return financialPartiallyRefunded
		}
		return financialRefunded
	case pendingStatus(p.Status):
		return financialPending
	}
	return ""
}

func completedStatus(status string) bool {
	switch status {
	case domain.StatusPublish, domain.StatusRevoked, domain.StatusCancelled, domain.StatusSubscription:
		return true
	}
	return false
}

func pendingStatus(status string) bool {
	switch status {
	case domain.StatusPending, domain.StatusFailed, domain.StatusAbandoned, domain.StatusPreapproved:
		return true
	}
	return false
}

// RemoteStatus translates the legacy "publish" status to the remote side's
// "complete"; everything else passes through unchanged.
func RemoteStatus(status string) string {
	if status == domain.StatusPublish {
		return "complete"
	}
	return status
}
