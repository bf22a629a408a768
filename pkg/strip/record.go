package strip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fkcurrie/matricks-golang/internal/types"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Frame is one recorded render
type Frame struct {
	Seq    uint64 `cbor:"1,keyasint"`
	Time   int64  `cbor:"2,keyasint"`
	Width  int    `cbor:"3,keyasint"`
	Height int    `cbor:"4,keyasint"`
	// Pixels holds four bytes per LED in strip order
	Pixels []byte `cbor:"5,keyasint"`
}

// LEDs unpacks the pixel bytes
func (f Frame) LEDs() []types.Color {
	leds := make([]types.Color, len(f.Pixels)/4)
	for i := range leds {
		copy(leds[i][:], f.Pixels[i*4:])
	}
	return leds
}

var recordEncMode cbor.EncMode

func init() {
	var err error
	recordEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("strip: CBOR encoder initialization failed: " + err.Error())
	}

	Register("record", func(opts Options) (Driver, error) {
		return NewRecorder(opts)
	})
}

// Recorder appends every rendered frame to a zstd compressed stream of
// CBOR records
type Recorder struct {
	file *os.File
	zw   *zstd.Encoder
	enc  *cbor.Encoder
	opts Options
	leds []types.Color
	seq  uint64
}

// NewRecorder creates the recording at opts.Output
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("record driver needs an output path")
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %v", err)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}

	return &Recorder{
		file: f,
		zw:   zw,
		enc:  recordEncMode.NewEncoder(zw),
		opts: opts,
		leds: make([]types.Color, opts.Count),
	}, nil
}

// LEDs returns the pixel buffer
func (r *Recorder) LEDs() []types.Color {
	return r.leds
}

// Render appends the buffer to the recording
func (r *Recorder) Render() error {
	pixels := make([]byte, len(r.leds)*4)
	for i, c := range r.leds {
		copy(pixels[i*4:], c[:])
	}
	r.seq++
	frame := Frame{
		Seq:    r.seq,
		Time:   time.Now().UnixNano(),
		Width:  r.opts.Width,
		Height: r.opts.Height,
		Pixels: pixels,
	}
	if err := r.enc.Encode(frame); err != nil {
		return fmt.Errorf("failed to record frame %d: %v", r.seq, err)
	}
	return nil
}

// Close flushes the compressed stream and closes the file
func (r *Recorder) Close() error {
	return errors.Join(r.zw.Close(), r.file.Close())
}

// ReadRecording decodes every frame in a recording
func ReadRecording(rd io.Reader) ([]Frame, error) {
	zr, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream: %v", err)
	}
	defer zr.Close()

	var frames []Frame
	dec := cbor.NewDecoder(zr)
	for {
		var frame Frame
		err := dec.Decode(&frame)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("failed to decode frame %d: %v", len(frames)+1, err)
		}
		frames = append(frames, frame)
	}
}
