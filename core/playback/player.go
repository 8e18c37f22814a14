package playback

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-sonic/core/audio"
)

const defaultPreroll = 240 * time.Millisecond

var _ audio.Source = (*Player)(nil)

// Player sits between the session and an output device: decoded model speech
// is pushed in, the device callback pulls PCM out through Fill.
type Player struct {
	buffer       *JitterBuffer
	encodingInfo audio.EncodingInfo

	fillMu  sync.Mutex
	scratch []float32
}

type PlayerOptions struct {
	EncodingInfo    audio.EncodingInfo
	Preroll         time.Duration
	InitialCapacity time.Duration
}

type PlayerOption func(*PlayerOptions)

// WithEncodingInfo sets the format of the audio the model speaks in. Only
// linear16 is supported.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) PlayerOption {
	return func(o *PlayerOptions) {
		o.EncodingInfo = encodingInfo
	}
}

// WithPreroll sets how much audio must be buffered before playback starts.
func WithPreroll(preroll time.Duration) PlayerOption {
	return func(o *PlayerOptions) {
		o.Preroll = preroll
	}
}

func WithInitialCapacity(capacity time.Duration) PlayerOption {
	return func(o *PlayerOptions) {
		o.InitialCapacity = capacity
	}
}

func NewPlayer(opts ...PlayerOption) *Player {
	options := PlayerOptions{
		EncodingInfo:    audio.GetDefaultOutputEncodingInfo(),
		Preroll:         defaultPreroll,
		InitialCapacity: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Player{
		buffer: NewJitterBuffer(
			options.EncodingInfo.Samples(options.Preroll),
			options.EncodingInfo.Samples(options.InitialCapacity),
		),
		encodingInfo: options.EncodingInfo,
	}
}

func (p *Player) EncodingInfo() audio.EncodingInfo { return p.encodingInfo }

// Push queues raw linear16 audio for playback.
func (p *Player) Push(pcm []byte) {
	p.buffer.Write(audio.PCM16ToFloat32(pcm))
}

// PushBase64 queues base64 encoded linear16 audio, as carried by audioOutput
// events.
func (p *Player) PushBase64(content string) error {
	pcm, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return fmt.Errorf("failed to decode audio output: %w", err)
	}
	p.Push(pcm)
	return nil
}

// Fill writes linear16 audio into out, padding with silence where nothing is
// ready, and returns how many bytes were real audio. It is meant to be called
// from the device callback.
func (p *Player) Fill(out []byte) int {
	samples := len(out) / 2

	p.fillMu.Lock()
	defer p.fillMu.Unlock()

	if cap(p.scratch) < samples {
		p.scratch = make([]float32, samples)
	}
	scratch := p.scratch[:samples]

	n := p.buffer.Read(scratch)
	audio.Float32ToPCM16(scratch, out)
	if len(out)%2 == 1 {
		out[len(out)-1] = 0
	}
	return 2 * n
}

// Clear drops all queued speech. Used when the model is interrupted.
func (p *Player) Clear() {
	p.buffer.Clear()
}

func (p *Player) Stats() Stats {
	return p.buffer.Stats()
}

// Buffered reports how much speech is waiting to be played.
func (p *Player) Buffered() time.Duration {
	return p.encodingInfo.Duration(p.buffer.Buffered())
}
