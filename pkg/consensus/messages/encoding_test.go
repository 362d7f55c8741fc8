package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

func testVote() *Vote {
	return &Vote{
		Type:       types.MessagePrepare,
		Sender:     "veh-1",
		Originator: "veh-2",
		Sequence:   7,
		View:       1,
		Proposal:   types.DirectionNorth,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatal(err)
	}

	in := testVote()
	data, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != in.Type || out.Sender != in.Sender || out.Originator != in.Originator ||
		out.Sequence != in.Sequence || out.View != in.View || out.Proposal != in.Proposal {
		t.Fatalf("round trip mismatch: in=%v out=%v", in, out)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp mismatch: in=%v out=%v", in.Timestamp, out.Timestamp)
	}
}

func TestCodecRejectsOversizedFrame(t *testing.T) {
	c, err := NewCodec(&CodecConfig{MaxVoteSize: 64, SeenCacheCap: 8, SeenCacheTTL: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	v := testVote()
	v.Proposal = strings.Repeat("N", 128)
	if _, err := c.Encode(v); err == nil {
		t.Fatal("oversized vote must fail to encode")
	}

	if _, err := c.Decode(make([]byte, 128)); err == nil {
		t.Fatal("oversized frame must fail to decode")
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(nil); err == nil {
		t.Fatal("empty frame must be rejected")
	}
	if _, err := c.Decode([]byte{0xff, 0x00, 0x13, 0x37}); err == nil {
		t.Fatal("garbage frame must be rejected")
	}
}

func TestCodecRejectsInvalidVote(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := []func(*Vote){
		func(v *Vote) { v.Type = 99 },
		func(v *Vote) { v.Sender = "" },
		func(v *Vote) { v.Originator = "" },
		func(v *Vote) { v.Sequence = 0 },
		func(v *Vote) { v.Proposal = "" },
	}
	for i, mutate := range cases {
		v := testVote()
		mutate(v)
		data, err := c.Encode(v)
		if err != nil {
			continue
		}
		if _, err := c.Decode(data); err == nil {
			t.Errorf("case %d: invalid vote passed validation", i)
		}
	}
}

func TestSeenBefore(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatal(err)
	}

	v := testVote()
	if c.SeenBefore(v) {
		t.Fatal("first delivery must not be seen")
	}
	if !c.SeenBefore(v) {
		t.Fatal("second delivery must be seen")
	}

	// A different view is a different logical send.
	v2 := testVote()
	v2.View = 2
	if c.SeenBefore(v2) {
		t.Fatal("distinct vote must not collide in the seen cache")
	}

	c.ClearSeen()
	if c.SeenBefore(v) {
		t.Fatal("cache must be empty after ClearSeen")
	}
}
