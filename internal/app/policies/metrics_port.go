package policies

// Metrics receives business counters from the handlers.
type Metrics interface {
	SettlementRecorded(duplicate bool)
	RefundAttempted(outcome string)
	NotificationDropped(template string)
}

type NopMetrics struct{}

func (NopMetrics) SettlementRecorded(bool)    {}
func (NopMetrics) RefundAttempted(string)     {}
func (NopMetrics) NotificationDropped(string) {}

// Refund outcomes reported to Metrics.
const (
	RefundOutcomeSucceeded = "succeeded"
	RefundOutcomeFailed    = "failed"
	RefundOutcomeSkipped   = "skipped"
)
