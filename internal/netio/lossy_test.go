package netio

import (
	"testing"
	"time"
)

func TestLossyPairDeliversWithoutLoss(t *testing.T) {
	a, b := NewLossyPair(0, 1)
	defer a.Close()

	if _, err := a.SendTo([]byte("hello"), nil); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	b.SetReadTimeout(time.Second)
	n, _, err := b.RecvFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("received %q, want %q", buf[:n], "hello")
	}
}

func TestLossyPairRecvTimesOut(t *testing.T) {
	_, b := NewLossyPair(0, 1)
	b.SetReadTimeout(50 * time.Millisecond)

	buf := make([]byte, 16)
	_, _, err := b.RecvFrom(buf)
	if err != ErrWouldBlock {
		t.Fatalf("RecvFrom with nothing sent = %v, want ErrWouldBlock", err)
	}
}

func TestLossyPairDropsEverythingAtProbabilityOne(t *testing.T) {
	a, b := NewLossyPair(1, 42)
	b.SetReadTimeout(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		if _, err := a.SendTo([]byte("x"), nil); err != nil {
			t.Fatal(err)
		}
	}

	buf := make([]byte, 16)
	if _, _, err := b.RecvFrom(buf); err != ErrWouldBlock {
		t.Fatalf("RecvFrom with drop probability 1 = %v, want ErrWouldBlock", err)
	}
}

func TestLossyPairCloneSharesQueue(t *testing.T) {
	a, b := NewLossyPair(0, 7)
	bClone, err := b.Clone()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.SendTo([]byte("hi"), nil); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	bClone.SetReadTimeout(time.Second)
	n, _, err := bClone.RecvFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hi" {
		t.Errorf("clone received %q, want %q", buf[:n], "hi")
	}
}
