package miniaudio

import (
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-sonic/core/audio"
)

// DefaultChunkDuration is how much microphone audio goes into one chunk.
const DefaultChunkDuration = 32 * time.Millisecond

// Client drives the default capture and playback devices. Captured audio is
// regrouped into chunks and handed to the capture callback; playback pulls
// from an [audio.Source] on the device thread.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	captureEncoding  audio.EncodingInfo
	playbackEncoding audio.EncodingInfo
	chunkDuration    time.Duration
}

func WithCaptureEncoding(encodingInfo audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) {
		o.captureEncoding = encodingInfo
	}
}

// WithPlaybackEncoding has to match what the source produces.
func WithPlaybackEncoding(encodingInfo audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) {
		o.playbackEncoding = encodingInfo
	}
}

func WithChunkDuration(duration time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.chunkDuration = duration
	}
}

// NewClient opens both devices. Playback starts right away and plays
// silence until source has audio.
func NewClient(source audio.Source, opts ...ClientOption) (*Client, error) {
	options := clientOptions{
		captureEncoding:  audio.GetDefaultEncodingInfo(),
		playbackEncoding: audio.GetDefaultOutputEncodingInfo(),
		chunkDuration:    DefaultChunkDuration,
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
	}

	if err := client.playbackClient.Init(audioCtx, source, options.playbackEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	chunkSamples := options.captureEncoding.Samples(options.chunkDuration)
	if err := client.captureClient.Init(audioCtx, options.captureEncoding, chunkSamples); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

// StartCapture calls onAudio with every full chunk from the microphone. It
// runs on the device thread and must not block.
func (c *Client) StartCapture(onAudio func(chunk []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) StartPlayback() error {
	return c.playbackClient.Start()
}

func (c *Client) StopPlayback() error {
	return c.playbackClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return c.captureClient.encodingInfo
}

func (c *Client) PlaybackEncodingInfo() audio.EncodingInfo {
	return c.playbackClient.encodingInfo
}
