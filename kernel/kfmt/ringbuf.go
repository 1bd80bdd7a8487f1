package kfmt

import "io"

// ringBufferSize defines the size of the buffer that captures early Printf
// output. It must be a power of 2 and is sized to hold the full bring-up
// transcript for a 4-core system.
const ringBufferSize = 4096

// ringBuffer buffers output emitted before an output sink is registered. If
// the buffer fills up, the oldest output is overwritten.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write appends len(p) bytes from p to the ring buffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p, returning io.EOF once the buffered
// contents have been drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	var n int

	switch {
	case rb.rIndex < rb.wIndex:
		n = rb.wIndex - rb.rIndex
		if len(p) < n {
			n = len(p)
		}

		copy(p, rb.buffer[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n

		return n, nil
	case rb.rIndex > rb.wIndex:
		n = ringBufferSize - rb.rIndex
		if len(p) < n {
			n = len(p)
		}

		copy(p, rb.buffer[rb.rIndex:rb.rIndex+n])
		rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)

		return n, nil
	default:
		return 0, io.EOF
	}
}
