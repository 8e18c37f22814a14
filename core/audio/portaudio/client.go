package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-sonic/core/audio"
)

// Client reads the default input device with a blocking stream and feeds
// the default output device from an [audio.Source] in a stream callback.
type Client struct {
	bufferSize int
	input      *portaudio.Stream
	output     *portaudio.Stream
	source     audio.Source

	in      []int16
	scratch []byte
}

// NewClient opens both streams. bufferSize is the capture chunk size in
// samples; 512 samples is 32ms at 16 kHz.
func NewClient(source audio.Source, bufferSize int, playbackEncoding audio.EncodingInfo) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("no playback source")
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c := &Client{
		bufferSize: bufferSize,
		source:     source,
		in:         make([]int16, bufferSize),
	}

	var err error
	c.input, err = portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, bufferSize, c.in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	c.output, err = portaudio.OpenDefaultStream(0, 1, float64(playbackEncoding.SampleRate), 0, c.fill)
	if err != nil {
		_ = c.input.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := c.output.Start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	return c, nil
}

func (c *Client) fill(out []int16) {
	if cap(c.scratch) < 2*len(out) {
		c.scratch = make([]byte, 2*len(out))
	}
	scratch := c.scratch[:2*len(out)]
	c.source.Fill(scratch)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(scratch[2*i:]))
	}
}

// Stream captures until ctx is done, handing every buffer to onAudio.
func (c *Client) Stream(ctx context.Context, onAudio func(chunk []byte)) error {
	if err := c.input.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	defer func() {
		if err := c.input.Stop(); err != nil {
			logger.Warn("failed to stop input stream", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.input.Read(); err != nil {
			// Overflows lose a buffer of audio but the stream keeps going.
			logger.WarnContext(ctx, "failed to read from input stream", "error", err)
			continue
		}
		onAudio(audio.Int16ToPCM16(c.in))
	}
}

func (c *Client) Close() {
	if c.output != nil {
		_ = c.output.Stop()
		_ = c.output.Close()
	}
	if c.input != nil {
		_ = c.input.Close()
	}
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
