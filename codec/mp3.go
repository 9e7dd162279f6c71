package codec

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// headerSize bounds bytes kept to find the first frame header.
const headerSize = 16 << 10

// Layer III bitrates in kbps by header index, MPEG 1 and MPEG 2/2.5.
var mp3Bitrates = [2][16]int{
	{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
}

type mp3Decoder struct {
	d    *mp3.Decoder
	info sound.Info
}

// NewMP3 returns decoder of mp3 stream. Output is always 16 bit stereo.
// Bitrate is taken from the first frame header.
func NewMP3(r io.Reader, _ sound.Info) (Decoder, error) {
	h := &headReader{r: r}
	d, err := mp3.NewDecoder(h)
	if err != nil {
		return nil, fmt.Errorf("mp3: %v: %w", err, pipe.ErrFail)
	}
	head := h.stop()
	return &mp3Decoder{
		d: d,
		info: sound.Info{
			Format:     sound.MP3,
			SampleRate: d.SampleRate(),
			Channels:   2,
			Bits:       16,
			Bitrate:    frameBitrate(head),
		},
	}, nil
}

func (m *mp3Decoder) Read(p []byte) (int, error) {
	return m.d.Read(p)
}

func (m *mp3Decoder) Info() sound.Info {
	return m.info
}

func (m *mp3Decoder) Close() error {
	return nil
}

// headReader keeps the beginning of the stream until stopped.
type headReader struct {
	r       io.Reader
	head    []byte
	stopped bool
}

func (h *headReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if !h.stopped && len(h.head) < headerSize {
		h.head = append(h.head, p[:min(n, headerSize-len(h.head))]...)
	}
	return n, err
}

func (h *headReader) stop() []byte {
	h.stopped = true
	head := h.head
	h.head = nil
	return head
}

// frameBitrate returns bitrate in bps of the first Layer III frame after
// optional ID3v2 tag. Zero is returned if no frame is found.
func frameBitrate(b []byte) int {
	i := 0
	if len(b) >= 10 && string(b[:3]) == "ID3" {
		size := int(b[6]&0x7f)<<21 | int(b[7]&0x7f)<<14 | int(b[8]&0x7f)<<7 | int(b[9]&0x7f)
		i = 10 + size
		if b[5]&0x10 != 0 {
			i += 10
		}
	}
	for ; i+3 < len(b); i++ {
		if b[i] != 0xff || b[i+1]&0xe0 != 0xe0 {
			continue
		}
		version := b[i+1] >> 3 & 0x3
		layer := b[i+1] >> 1 & 0x3
		index := b[i+2] >> 4
		rate := b[i+2] >> 2 & 0x3
		if version == 1 || layer != 1 || index == 0 || index == 15 || rate == 3 {
			continue
		}
		table := 0
		if version != 3 {
			table = 1
		}
		return mp3Bitrates[table][index] * 1000
	}
	return 0
}
