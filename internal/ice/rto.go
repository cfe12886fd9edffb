package ice

import "time"

// RFC 5389 Appendix B retransmission schedule: RTO doubles each attempt
// starting at 500ms, for 7 retransmits, then the transaction is abandoned
// (spec.md §4.2, §4.3).
const (
	initialRTO    = 500 * time.Millisecond
	maxRetransmit = 7
)

// rtoForAttempt returns the retransmission timeout before attempt n (0 =
// the interval after the very first request was sent).
func rtoForAttempt(n int) time.Duration {
	return initialRTO << uint(n)
}
