package messages

import (
	"fmt"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// Vote is the single wire message of the agreement protocol. The same shape
// carries PRE_PREPARE, PREPARE and COMMIT; the type field disambiguates.
type Vote struct {
	Type       types.MessageType `cbor:"1,keyasint"`
	Sender     types.AgentID     `cbor:"2,keyasint"`
	Originator types.AgentID     `cbor:"3,keyasint"`
	Sequence   uint64            `cbor:"4,keyasint"`
	View       uint64            `cbor:"5,keyasint"`
	Proposal   string            `cbor:"6,keyasint"`
	Timestamp  time.Time         `cbor:"7,keyasint"`
}

// RoundKey identifies the round a vote belongs to.
func (v *Vote) RoundKey() string {
	return fmt.Sprintf("%s/%d", v.Originator, v.Sequence)
}

// DedupeKey identifies one logical send for duplicate suppression. Two frames
// with the same key are the same vote delivered twice.
func (v *Vote) DedupeKey() string {
	return fmt.Sprintf("%d|%s|%s|%d|%d", v.Type, v.Sender, v.Originator, v.Sequence, v.View)
}

func (v *Vote) String() string {
	return fmt.Sprintf("%s from=%s origin=%s seq=%d view=%d proposal=%q",
		v.Type, v.Sender, v.Originator, v.Sequence, v.View, v.Proposal)
}
