package audio

// Chunker re-slices arbitrarily sized PCM16 byte chunks into canonical
// frame-sized pieces. Providers and carriers deliver audio in whatever
// chunk size suits them; everything downstream wants BytesPerFrame.
// Not safe for concurrent use.
type Chunker struct {
	buf []byte
}

// Push appends pcm and returns every complete frame payload now
// available. Returned slices are freshly allocated.
func (c *Chunker) Push(pcm []byte) [][]byte {
	c.buf = append(c.buf, pcm...)

	var out [][]byte
	for len(c.buf) >= BytesPerFrame {
		frame := make([]byte, BytesPerFrame)
		copy(frame, c.buf[:BytesPerFrame])
		c.buf = c.buf[BytesPerFrame:]
		out = append(out, frame)
	}
	return out
}

// Flush returns any buffered remainder as a final short frame payload,
// or nil if nothing is pending.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	c.buf = c.buf[:0]
	return out
}

// Pending returns the number of buffered bytes not yet emitted.
func (c *Chunker) Pending() int {
	return len(c.buf)
}
