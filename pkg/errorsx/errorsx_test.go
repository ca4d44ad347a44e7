package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonRecognizerSend)
	if Reason(err) != ReasonRecognizerSend {
		t.Fatalf("expected reason %s, got %s", ReasonRecognizerSend, Reason(err))
	}
	if !HasReason(err, ReasonRecognizerSend) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonConfigInvalid)
	second := Wrap(first, ReasonInvariant)
	if Reason(second) != ReasonConfigInvalid {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
