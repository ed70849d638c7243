package chat

import "fmt"

// SendPolicy decides what happens when SendMessage is called while an
// earlier send is still outstanding.
type SendPolicy string

const (
	// SendPolicySerialize queues the send until the outstanding one
	// finishes, so every request carries the complete history.
	SendPolicySerialize SendPolicy = "serialize"

	// SendPolicyReject fails the send with ErrBusy.
	SendPolicyReject SendPolicy = "reject"

	// SendPolicyAllow issues overlapping requests. IsLoading stays set
	// until the last one finishes.
	SendPolicyAllow SendPolicy = "allow"
)

// Validate reports an unknown policy.
func (p SendPolicy) Validate() error {
	switch p {
	case SendPolicySerialize, SendPolicyReject, SendPolicyAllow:
		return nil
	default:
		return fmt.Errorf("unknown send policy: %q", string(p))
	}
}
