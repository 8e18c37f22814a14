package audio

// Source produces linear16 audio on demand. Fill writes into out, padding
// with silence, and returns how many bytes were real audio.
type Source interface {
	Fill(out []byte) int
}

// Chunker regroups captured audio into fixed size chunks. Device callbacks
// deliver whatever period size the driver picked; the model is happiest with
// steady chunks.
type Chunker struct {
	size    int
	pending []byte
}

func NewChunker(encodingInfo EncodingInfo, samples int) *Chunker {
	size := samples * encodingInfo.Format.ByteSize() * encodingInfo.channels()
	if size <= 0 {
		size = 1024
	}
	return &Chunker{size: size, pending: make([]byte, 0, 2*size)}
}

// Write buffers p and calls emit for every full chunk. Chunks passed to emit
// are freshly allocated and can be kept.
func (c *Chunker) Write(p []byte, emit func(chunk []byte)) {
	c.pending = append(c.pending, p...)
	for len(c.pending) >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.pending)
		c.pending = c.pending[:copy(c.pending, c.pending[c.size:])]
		emit(chunk)
	}
}

// Reset drops a partial chunk.
func (c *Chunker) Reset() {
	c.pending = c.pending[:0]
}

func (c *Chunker) Size() int { return c.size }
