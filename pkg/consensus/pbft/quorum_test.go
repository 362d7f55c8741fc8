package pbft

import "testing"

func TestVerifierSizing(t *testing.T) {
	cases := []struct {
		f         int
		threshold int
		min       int
	}{
		{f: 1, threshold: 3, min: 4},
		{f: 2, threshold: 5, min: 7},
		{f: 3, threshold: 7, min: 10},
	}
	for _, tc := range cases {
		v := NewVerifier(tc.f, nil)
		if v.Threshold() != tc.threshold {
			t.Errorf("f=%d: threshold %d, want %d", tc.f, v.Threshold(), tc.threshold)
		}
		if v.MinParticipants() != tc.min {
			t.Errorf("f=%d: min participants %d, want %d", tc.f, v.MinParticipants(), tc.min)
		}
		if v.HasQuorum(tc.threshold - 1) {
			t.Errorf("f=%d: quorum below threshold", tc.f)
		}
		if !v.HasQuorum(tc.threshold) {
			t.Errorf("f=%d: no quorum at threshold", tc.f)
		}
	}
}

func TestFixedVerifierDemoQuorum(t *testing.T) {
	// Demo sizing: Q=2, self plus one peer.
	v := NewFixedVerifier(2, nil)
	if v.Threshold() != 2 {
		t.Fatalf("threshold %d, want 2", v.Threshold())
	}
	if v.HasQuorum(1) {
		t.Fatal("single vote must not reach quorum")
	}
	if !v.HasQuorum(2) {
		t.Fatal("two votes must reach quorum")
	}
}

func TestValidateQuorumMath(t *testing.T) {
	v := NewVerifier(1, nil)
	if err := v.ValidateQuorumMath(4); err != nil {
		t.Fatalf("4 participants must satisfy f=1: %v", err)
	}
	if err := v.ValidateQuorumMath(3); err == nil {
		t.Fatal("3 participants must be rejected for f=1")
	}
	// Zero participants means unknown cluster size, only static checks run.
	if err := v.ValidateQuorumMath(0); err != nil {
		t.Fatalf("unknown participant count must pass static checks: %v", err)
	}
}
