package scrollback

import (
	"bytes"
	"testing"
)

func TestNewRingRejectsZeroCapacity(t *testing.T) {
	if _, err := NewRing(0); err == nil {
		t.Fatal("expected error for capacity 0")
	}
	if _, err := NewRing(-1); err == nil {
		t.Fatal("expected error for negative capacity")
	}
}

func TestPushWithinCapacity(t *testing.T) {
	r, err := NewRing(8)
	if err != nil {
		t.Fatal(err)
	}
	r.Push([]byte("hello "))
	r.Push([]byte("world"))
	got := r.Contents()
	want := "lo world"
	if string(got) != want {
		t.Fatalf("Contents() = %q, want %q", got, want)
	}
}

func TestPushSegmentLargerThanCapacity(t *testing.T) {
	r, err := NewRing(3)
	if err != nil {
		t.Fatal(err)
	}
	r.Push([]byte("abcdefghij"))
	got := r.Contents()
	if string(got) != "hij" {
		t.Fatalf("Contents() = %q, want %q", got, "hij")
	}
}

func TestCapacityOneRetainsLastByte(t *testing.T) {
	r, err := NewRing(1)
	if err != nil {
		t.Fatal(err)
	}
	r.Push([]byte("xyz"))
	if got := r.Contents(); string(got) != "z" {
		t.Fatalf("Contents() = %q, want %q", got, "z")
	}
}

func TestContentsIsACopy(t *testing.T) {
	r, err := NewRing(8)
	if err != nil {
		t.Fatal(err)
	}
	r.Push([]byte("abcd"))
	snap := r.Contents()
	snap[0] = 'Z'
	if got := r.Contents(); bytes.Equal(got, snap) {
		t.Fatal("mutating a Contents() snapshot affected the ring")
	}
}

func TestTotalSizeInvariant(t *testing.T) {
	r, err := NewRing(10)
	if err != nil {
		t.Fatal(err)
	}
	var all []byte
	for i := 0; i < 50; i++ {
		chunk := []byte{byte('a' + i%26)}
		all = append(all, chunk...)
		r.Push(chunk)
	}
	got := r.Contents()
	want := all[len(all)-10:]
	if !bytes.Equal(got, want) {
		t.Fatalf("Contents() = %q, want %q", got, want)
	}
}

func TestPushEmptyIsNoop(t *testing.T) {
	r, err := NewRing(4)
	if err != nil {
		t.Fatal(err)
	}
	r.Push([]byte("ab"))
	r.Push(nil)
	r.Push([]byte{})
	if got := r.Contents(); string(got) != "ab" {
		t.Fatalf("Contents() = %q, want %q", got, "ab")
	}
}
