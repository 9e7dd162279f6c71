package codec

import (
	"fmt"
	"io"

	"github.com/viert/lame"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// DefaultQuality of lame encoder, 0 is best and 9 is worst.
const DefaultQuality = 2

// NewLAME returns mp3 encoder of 16 bit PCM.
func NewLAME(w io.Writer, info sound.Info, bitrate int) (Encoder, error) {
	if info.Bits != 16 {
		return nil, fmt.Errorf("lame %d bits: %w", info.Bits, pipe.ErrNotSupported)
	}
	if info.Channels < 1 || info.Channels > 2 {
		return nil, fmt.Errorf("lame %d channels: %w", info.Channels, pipe.ErrNotSupported)
	}
	wr := lame.NewWriter(w)
	wr.Encoder.SetBitrate(bitrate)
	wr.Encoder.SetQuality(DefaultQuality)
	wr.Encoder.SetNumChannels(info.Channels)
	wr.Encoder.SetInSamplerate(info.SampleRate)
	if info.Channels == 1 {
		wr.Encoder.SetMode(lame.MONO)
	} else {
		wr.Encoder.SetMode(lame.JOINT_STEREO)
	}
	wr.Encoder.InitParams()
	return wr, nil
}
