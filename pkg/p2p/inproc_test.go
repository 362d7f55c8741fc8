package p2p

import (
	"context"
	"testing"
	"time"
)

func collect(t *testing.T, port *Port) <-chan []byte {
	t.Helper()
	ch := make(chan []byte, 16)
	port.Subscribe(func(_ context.Context, data []byte) {
		ch <- data
	})
	return ch
}

func recvOne(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertSilent(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case data := <-ch:
		t.Fatalf("unexpected frame %q", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastReachesAllOtherPorts(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, err := bus.Open("a")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := bus.Open("b")
	c, _ := bus.Open("c")

	chA := collect(t, a)
	chB := collect(t, b)
	chC := collect(t, c)

	if err := a.Broadcast(context.Background(), []byte("hello")); err != nil {
		t.Fatal(err)
	}

	if got := recvOne(t, chB); string(got) != "hello" {
		t.Fatalf("b received %q", got)
	}
	if got := recvOne(t, chC); string(got) != "hello" {
		t.Fatalf("c received %q", got)
	}
	assertSilent(t, chA)
}

func TestDuplicatePortNameRejected(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	if _, err := bus.Open("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.Open("a"); err == nil {
		t.Fatal("duplicate port name must be rejected")
	}
}

func TestFaultHookDropsAndDelays(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, _ := bus.Open("a")
	b, _ := bus.Open("b")
	c, _ := bus.Open("c")

	// Drop everything to b, delay frames to c.
	bus.Fault = func(from, to string, data []byte) time.Duration {
		if to == "b" {
			return -1
		}
		return 5 * time.Millisecond
	}

	chB := collect(t, b)
	chC := collect(t, c)

	if err := a.Broadcast(context.Background(), []byte("x")); err != nil {
		t.Fatal(err)
	}

	if got := recvOne(t, chC); string(got) != "x" {
		t.Fatalf("c received %q", got)
	}
	assertSilent(t, chB)
}

func TestDeliveredFramesAreCopies(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, _ := bus.Open("a")
	b, _ := bus.Open("b")
	chB := collect(t, b)

	frame := []byte("original")
	if err := a.Broadcast(context.Background(), frame); err != nil {
		t.Fatal(err)
	}
	frame[0] = 'X'

	if got := recvOne(t, chB); string(got) != "original" {
		t.Fatalf("delivered frame mutated: %q", got)
	}
}

func TestClosedPortStopsSendingAndReceiving(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, _ := bus.Open("a")
	b, _ := bus.Open("b")
	chB := collect(t, b)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Broadcast(context.Background(), []byte("x")); err == nil {
		t.Fatal("closed port must refuse to send")
	}

	if err := a.Broadcast(context.Background(), []byte("y")); err != nil {
		t.Fatal(err)
	}
	assertSilent(t, chB)

	// The name is free again after close.
	if _, err := bus.Open("b"); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
}

func TestClosedBusRejectsOpen(t *testing.T) {
	bus := NewBus()
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.Open("a"); err == nil {
		t.Fatal("closed bus must reject new ports")
	}
}
