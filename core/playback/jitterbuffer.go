package playback

import (
	"context"
	"sync"
)

const defaultJitterBufferCapacity = 24000

// JitterBuffer smooths the arrival of decoded speech before it reaches the
// output device.
//
// Audio is kept in a single arena between readIndex and writeIndex. Playback
// does not start until initialBufferLength samples are buffered (pre-roll) and
// goes back to pre-roll whenever the buffer runs completely dry, or when it is
// cleared on barge-in.
type JitterBuffer struct {
	mu sync.Mutex

	buffer     []float32
	readIndex  int
	writeIndex int

	initialBufferLength int
	playing             bool

	underflowCount int
}

// NewJitterBuffer creates a buffer that holds back playback until
// initialBufferLength samples arrived. capacity is the starting arena size,
// it grows as needed.
func NewJitterBuffer(initialBufferLength, capacity int) *JitterBuffer {
	if initialBufferLength < 0 {
		initialBufferLength = 0
	}
	if capacity <= 0 {
		capacity = defaultJitterBufferCapacity
	}
	capacity = max(capacity, initialBufferLength)

	return &JitterBuffer{
		buffer:              make([]float32, capacity),
		initialBufferLength: initialBufferLength,
	}
}

// Write appends samples. Data is never dropped: the unread tail is compacted to
// the start of the arena first and the arena grows if that is not enough.
func (b *JitterBuffer) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeIndex+len(samples) > len(b.buffer) {
		b.compactLocked()
	}
	if required := b.writeIndex + len(samples); required > len(b.buffer) {
		b.growLocked(required)
	}

	copy(b.buffer[b.writeIndex:], samples)
	b.writeIndex += len(samples)
}

// compactLocked moves unread samples to the start of the arena.
func (b *JitterBuffer) compactLocked() {
	if b.readIndex == 0 {
		return
	}
	n := copy(b.buffer, b.buffer[b.readIndex:b.writeIndex])
	b.readIndex = 0
	b.writeIndex = n
}

func (b *JitterBuffer) growLocked(required int) {
	grown := make([]float32, max(2*required, 2*len(b.buffer)))
	n := copy(grown, b.buffer[b.readIndex:b.writeIndex])
	b.buffer = grown
	b.readIndex = 0
	b.writeIndex = n
}

// Read fills dst completely and returns how many of the samples were real
// audio; the rest is silence.
//
// While pre-rolling, dst is filled with silence and nothing is consumed. When
// the buffer runs out mid-read the remainder is padded with silence, the
// padded length is added to the underflow counter and the buffer goes back to
// pre-roll.
func (b *JitterBuffer) Read(dst []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.playing {
		if b.writeIndex-b.readIndex < b.initialBufferLength || b.writeIndex == b.readIndex {
			clear(dst)
			return 0
		}
		b.playing = true
	}

	n := copy(dst, b.buffer[b.readIndex:b.writeIndex])
	b.readIndex += n

	if n < len(dst) {
		clear(dst[n:])
		b.underflowCount += len(dst) - n
		b.playing = false
		underflowCounter.Add(context.Background(), int64(len(dst)-n))
	}
	if b.readIndex == b.writeIndex {
		b.readIndex = 0
		b.writeIndex = 0
	}

	return n
}

// Clear discards everything buffered and returns to pre-roll. The next Read
// is silent.
func (b *JitterBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.readIndex = 0
	b.writeIndex = 0
	b.playing = false
}

// Buffered reports how many unread samples are held.
func (b *JitterBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeIndex - b.readIndex
}

// Underflows reports the total number of silence samples padded after
// playback had started.
func (b *JitterBuffer) Underflows() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.underflowCount
}

// Playing reports whether pre-roll is satisfied.
func (b *JitterBuffer) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}

// Capacity reports the current arena size.
func (b *JitterBuffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

type Stats struct {
	Buffered   int
	Underflows int
	Playing    bool
	Capacity   int
}

func (b *JitterBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Buffered:   b.writeIndex - b.readIndex,
		Underflows: b.underflowCount,
		Playing:    b.playing,
		Capacity:   len(b.buffer),
	}
}
