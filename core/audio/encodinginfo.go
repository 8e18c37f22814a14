package audio

import "time"

const (
	// DefaultSampleRate is the rate microphone audio is streamed to the model at.
	DefaultSampleRate = 16000
	// DefaultOutputSampleRate is the rate the model speaks at.
	DefaultOutputSampleRate = 24000
	DefaultFormat           = "linear16"
)

// GetDefaultEncodingInfo describes microphone input: 16 kHz linear16 mono.
func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat), Channels: 1}
}

// GetDefaultOutputEncodingInfo describes model speech: 24 kHz linear16 mono.
func GetDefaultOutputEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultOutputSampleRate, Format: encodingFormat(DefaultFormat), Channels: 1}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
	Channels   int
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) channels() int {
	if e.Channels <= 0 {
		return 1
	}
	return e.Channels
}

// SampleSizeBits is reported to the model in audio configurations.
func (e EncodingInfo) SampleSizeBits() int {
	return e.Format.ByteSize() * 8
}

// Samples returns how many samples (across all channels) cover duration.
func (e EncodingInfo) Samples(duration time.Duration) int {
	return int(duration * time.Duration(e.SampleRate*e.channels()) / time.Second)
}

// Duration returns how long the given number of samples plays for.
func (e EncodingInfo) Duration(samples int) time.Duration {
	if e.SampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(e.SampleRate*e.channels())
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case encodingFormat("alaw"):
		return 0x55
	case encodingFormat("mulaw"):
		return 0xFF
	case encodingFormat("linear16"):
		return 0
	}

	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
