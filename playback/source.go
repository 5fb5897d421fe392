package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pion/opus"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/sirupsen/logrus"
)

// OpusSampleRate is the rate decoded Opus audio is produced at.
const OpusSampleRate = 48000

// maxPacketSamples is the longest Opus packet, 120 ms, at 48 kHz.
const maxPacketSamples = 120 * OpusSampleRate / 1000

var (
	// ErrEmptyPacket is returned for a zero-length Opus packet.
	ErrEmptyPacket = errors.New("empty opus packet")

	// ErrBadPacket is returned when an Opus packet's header is malformed.
	ErrBadPacket = errors.New("malformed opus packet")
)

// Source produces mono audio in blocks at a fixed sample rate.
type Source interface {
	SampleRate() uint32
	// Next returns the next block. It returns io.EOF after the last one.
	// The block is only valid until the following call.
	Next() ([]float32, error)
}

// packetDecoder is the part of *opus.Decoder the source uses. Decode writes
// signed 16-bit little-endian PCM at 48 kHz.
type packetDecoder interface {
	Decode(in, out []byte) (opus.Bandwidth, bool, error)
}

// OggOpusSource decodes an Ogg/Opus stream. Each Ogg page is taken as one
// Opus packet, which is how pion's Ogg writer lays out a stream.
type OggOpusSource struct {
	reader  *oggreader.OggReader
	header  *oggreader.OggHeader
	decoder packetDecoder

	pcm     []byte
	out     []float32
	skip    int
	packets uint64
}

var _ Source = (*OggOpusSource)(nil)

// NewOggOpusSource reads the Opus header from r.
func NewOggOpusSource(r io.Reader) (*OggOpusSource, error) {
	dec := opus.NewDecoder()
	return newOggOpusSource(r, &dec)
}

func newOggOpusSource(r io.Reader, dec packetDecoder) (*OggOpusSource, error) {
	reader, header, err := oggreader.NewWith(r)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewOggOpusSource",
			"error":    err.Error(),
		}).Error("Failed to read Ogg/Opus header")
		return nil, fmt.Errorf("read ogg header: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewOggOpusSource",
		"channels":    header.Channels,
		"input_rate":  header.SampleRate,
		"pre_skip":    header.PreSkip,
		"output_gain": header.OutputGain,
	}).Info("Opened Ogg/Opus stream")

	return &OggOpusSource{
		reader:  reader,
		header:  header,
		decoder: dec,
		pcm:     make([]byte, maxPacketSamples*2*2),
		out:     make([]float32, 0, maxPacketSamples),
		skip:    int(header.PreSkip),
	}, nil
}

// SampleRate implements Source.
func (s *OggOpusSource) SampleRate() uint32 { return OpusSampleRate }

// Channels returns the channel count announced in the stream header.
func (s *OggOpusSource) Channels() int { return int(s.header.Channels) }

// Packets returns how many packets were decoded so far.
func (s *OggOpusSource) Packets() uint64 { return s.packets }

// Next implements Source. Stereo packets are mixed down to mono and the
// encoder's pre-skip is dropped from the start of the stream.
func (s *OggOpusSource) Next() ([]float32, error) {
	for {
		page, _, err := s.reader.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read ogg page: %w", err)
		}
		if len(page) == 0 || bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}

		samples, stereo, err := packetSamples(page)
		if err != nil {
			return nil, err
		}
		channels := 1
		if stereo {
			channels = 2
		}
		pcm := s.pcm[:samples*channels*2]
		if _, _, err := s.decoder.Decode(page, pcm); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "OggOpusSource.Next",
				"packet":   s.packets,
				"error":    err.Error(),
			}).Error("Opus decode failed")
			return nil, fmt.Errorf("opus decode failed: %w", err)
		}
		s.packets++

		out := pcm16ToMono(s.out[:0], pcm, channels)
		if s.skip > 0 {
			n := min(s.skip, len(out))
			out = out[n:]
			s.skip -= n
		}
		if len(out) == 0 {
			continue
		}
		return out, nil
	}
}

// pcm16ToMono appends the little-endian 16-bit interleaved samples in pcm,
// averaged across channels, to out.
func pcm16ToMono(out []float32, pcm []byte, channels int) []float32 {
	frame := 2 * channels
	for i := 0; i+frame <= len(pcm); i += frame {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			off := i + 2*ch
			v := int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8)
			sum += float32(v) / 32768
		}
		out = append(out, sum/float32(channels))
	}
	return out
}

// frameSamples returns the number of 48 kHz samples in one frame of the
// given configuration (the top five bits of the TOC byte).
func frameSamples(config byte) int {
	switch {
	case config < 12: // SILK: 10, 20, 40, 60 ms
		return []int{480, 960, 1920, 2880}[config%4]
	case config < 16: // Hybrid: 10, 20 ms
		return []int{480, 960}[config%2]
	default: // CELT: 2.5, 5, 10, 20 ms
		return []int{120, 240, 480, 960}[config%4]
	}
}

// packetSamples reads the TOC byte of an Opus packet and returns the
// number of 48 kHz samples per channel it decodes to.
func packetSamples(packet []byte) (int, bool, error) {
	if len(packet) == 0 {
		return 0, false, ErrEmptyPacket
	}
	toc := packet[0]
	stereo := toc&0x04 != 0
	per := frameSamples(toc >> 3)

	var frames int
	switch toc & 0x03 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(packet) < 2 {
			return 0, false, fmt.Errorf("%w: missing frame count", ErrBadPacket)
		}
		frames = int(packet[1] & 0x3f)
	}
	if frames == 0 || per*frames > maxPacketSamples {
		return 0, false, fmt.Errorf("%w: %d frames of %d samples", ErrBadPacket, frames, per)
	}
	return per * frames, stereo, nil
}

// ToneSource generates a sine wave, optionally for a limited duration.
type ToneSource struct {
	rate      uint32
	frequency float64
	amplitude float32
	remaining int // samples left; negative means unlimited
	phase     float64
	block     []float32
}

var _ Source = (*ToneSource)(nil)

// NewToneSource creates a tone of frequency Hz at rate. A zero length
// produces an endless tone.
func NewToneSource(rate uint32, frequency float64, amplitude float32, length int) *ToneSource {
	remaining := length
	if length <= 0 {
		remaining = -1
	}
	return &ToneSource{
		rate:      rate,
		frequency: frequency,
		amplitude: amplitude,
		remaining: remaining,
		block:     make([]float32, int(rate)/50), // 20 ms
	}
}

// SampleRate implements Source.
func (t *ToneSource) SampleRate() uint32 { return t.rate }

// Next implements Source.
func (t *ToneSource) Next() ([]float32, error) {
	if t.remaining == 0 {
		return nil, io.EOF
	}
	n := len(t.block)
	if t.remaining > 0 && t.remaining < n {
		n = t.remaining
	}
	step := 2 * math.Pi * t.frequency / float64(t.rate)
	for i := 0; i < n; i++ {
		t.block[i] = t.amplitude * float32(math.Sin(t.phase))
		t.phase += step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	if t.remaining > 0 {
		t.remaining -= n
	}
	return t.block[:n], nil
}
