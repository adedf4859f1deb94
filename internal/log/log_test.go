package log

import "testing"

func TestInitIsIdempotent(t *testing.T) {
	Init("debug")
	first := L()
	Init("error")
	if L() != first {
		t.Error("Expected repeated Init to keep the first logger")
	}
}

func TestForCamera(t *testing.T) {
	if ForCamera(3) == nil {
		t.Fatal("Expected a camera-scoped logger")
	}
	if With("component", "stream") == nil {
		t.Fatal("Expected an attributed logger")
	}
}
