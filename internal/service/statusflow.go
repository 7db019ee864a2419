package service

import "opsconsole/internal/model"

// Stage is one step of a kind's progress flow.
type Stage struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// The two progress flows are fixed. Job-work orders can additionally hold
// pending, accepted, or cancelled, which are real statuses but not progress
// stages; Position reports them as -1 and the UI renders all stages pending.
var (
	regularFlow = []Stage{
		{Key: "confirmed", Label: "Confirmed"},
		{Key: "processing", Label: "Processing"},
		{Key: "quality_check", Label: "Quality Check"},
		{Key: "ready_for_dispatch", Label: "Ready for Dispatch"},
		{Key: "dispatched", Label: "Dispatched"},
	}

	jobWorkFlow = []Stage{
		{Key: "material_received", Label: "Material Received"},
		{Key: "in_process", Label: "In Process"},
		{Key: "completed", Label: "Completed"},
		{Key: "ready_for_delivery", Label: "Ready for Delivery"},
		{Key: "delivered", Label: "Delivered"},
	}

	// Full job-work lifecycle including the pre-production and terminal
	// statuses absent from the progress flow. Cancellation is reachable from
	// any non-terminal point and has no successor.
	jobWorkLifecycle = []string{
		model.JobWorkStatusPending,
		model.JobWorkStatusAccepted,
		"material_received",
		"in_process",
		"completed",
		"ready_for_delivery",
		"delivered",
	}
)

// Stages returns the progress flow for an order kind. Unknown kinds get an
// empty flow rather than a panic; the caller renders nothing.
func Stages(kind string) []Stage {
	switch kind {
	case model.KindRegular:
		return regularFlow
	case model.KindJobWork:
		return jobWorkFlow
	default:
		return nil
	}
}

// Position returns the zero-based index of the order's status within its
// kind's progress flow, or -1 when the status is not a progress stage
// (pending, accepted, cancelled, unknown). Rendering treats lower indexes as
// passed and higher ones as pending. No transition legality is checked here;
// the ERP is the sole authority on allowed moves.
func Position(o model.Order) int {
	for i, stage := range Stages(o.Kind) {
		if stage.Key == o.Status {
			return i
		}
	}
	return -1
}

// NextJobWorkStatus returns the successor of the given status in the full
// job-work lifecycle. The second result is false for delivered (terminal),
// cancelled, and unknown statuses.
func NextJobWorkStatus(current string) (string, bool) {
	for i, s := range jobWorkLifecycle {
		if s == current {
			if i+1 < len(jobWorkLifecycle) {
				return jobWorkLifecycle[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// IsTerminalJobWorkStatus reports whether no further production transitions
// are possible.
func IsTerminalJobWorkStatus(status string) bool {
	return status == "delivered" || status == model.JobWorkStatusCancelled
}
