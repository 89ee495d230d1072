package models

import "context"

// Maintenance action names accepted by the health controller.
const (
	ActionRebalance  = "rebalance"
	ActionAutoEnable = "auto-enable"
	ActionArchive    = "archive"
	ActionPredict    = "predict"
	ActionCleanup    = "cleanup"
)

// ValidActions is the set reported back on an invalid-action error.
var ValidActions = []string{
	ActionRebalance,
	ActionAutoEnable,
	ActionArchive,
	ActionPredict,
	ActionCleanup,
}

// AdvisoryLocker serializes a batch action with itself. Acquire returns
// ErrMaintenanceBusy while another invocation holds the action's lock.
type AdvisoryLocker interface {
	Acquire(ctx context.Context, action string) error
	Release(ctx context.Context, action string) error
}
