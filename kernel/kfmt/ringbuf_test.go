package kfmt

import (
	"bytes"
	"io"
	"io/ioutil"
	"testing"
)

func TestRingBufferReadWrite(t *testing.T) {
	var rb ringBuffer

	if _, err := rb.Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("expected to get io.EOF on an empty buffer; got %v", err)
	}

	payload := []byte("hello bring-up")
	n, err := rb.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("expected Write to accept %d bytes; got %d, %v", len(payload), n, err)
	}

	var drained bytes.Buffer
	if _, err = io.Copy(&drained, &rb); err != nil {
		t.Fatal(err)
	}

	if got := drained.String(); got != string(payload) {
		t.Fatalf("expected to read back %q; got %q", payload, got)
	}

	if _, err = rb.Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("expected to get io.EOF after draining; got %v", err)
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	var rb ringBuffer

	// Fill the buffer past capacity; the oldest bytes must be dropped.
	for i := 0; i < ringBufferSize; i++ {
		rb.Write([]byte{'x'})
	}
	rb.Write([]byte("abc"))

	var drained bytes.Buffer
	if _, err := io.Copy(&drained, &rb); err != nil {
		t.Fatal(err)
	}

	got := drained.String()
	if exp := ringBufferSize - 1; len(got) != exp {
		t.Fatalf("expected %d buffered bytes; got %d", exp, len(got))
	}
	if got[len(got)-3:] != "abc" {
		t.Fatalf("expected the newest bytes to survive; tail is %q", got[len(got)-3:])
	}
}

func TestRingBufferWrappedRead(t *testing.T) {
	var rb ringBuffer

	// Advance the indices close to the end of the backing array so the
	// next write wraps.
	pad := make([]byte, ringBufferSize-4)
	rb.Write(pad)
	io.Copy(ioutil.Discard, &rb)

	rb.Write([]byte("wrapped!"))

	var drained bytes.Buffer
	if _, err := io.Copy(&drained, &rb); err != nil {
		t.Fatal(err)
	}

	if got := drained.String(); got != "wrapped!" {
		t.Fatalf("expected to read back %q; got %q", "wrapped!", got)
	}
}
