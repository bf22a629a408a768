package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fkcurrie/matricks-golang/internal/types"
)

var (
	// ErrInvalidUTF8 is returned for update responses that are not UTF-8
	ErrInvalidUTF8 = errors.New("update response is not valid UTF-8")
	// ErrMalformedUpdate is returned for update responses of the wrong shape
	ErrMalformedUpdate = errors.New("malformed update response")
	// ErrFrameSize is returned for frames that do not fit the matrix
	ErrFrameSize = fmt.Errorf("%w: frame does not match matrix dimensions", ErrMalformedUpdate)
)

// Protocol selects how update responses are interpreted
type Protocol int

const (
	// ProtocolAuto picks the variant from the shape of each response
	ProtocolAuto Protocol = iota
	// ProtocolFrame expects a bare frame, or null once finished
	ProtocolFrame
	// ProtocolUpdate expects a {state, done, log_message} object
	ProtocolUpdate
)

// ParseProtocol returns the protocol with the given name
func ParseProtocol(name string) (Protocol, error) {
	switch name {
	case "auto", "":
		return ProtocolAuto, nil
	case "frame":
		return ProtocolFrame, nil
	case "update":
		return ProtocolUpdate, nil
	default:
		return ProtocolAuto, fmt.Errorf("unknown plugin protocol %q", name)
	}
}

func (p Protocol) String() string {
	switch p {
	case ProtocolAuto:
		return "auto"
	case ProtocolFrame:
		return "frame"
	case ProtocolUpdate:
		return "update"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// updateObject is the wire form of the update variant. State is decoded
// separately so a null state can be told apart from an empty one.
type updateObject struct {
	State      json.RawMessage   `json:"state"`
	Done       bool              `json:"done"`
	LogMessage types.LogMessages `json:"log_message"`
}

// Decode interprets the output of a plugin's update call for a matrix of
// the given size. The returned update has Done set when the plugin has
// finished; State is nil in that case.
func (p Protocol) Decode(out []byte, width, height int) (types.PluginUpdate, error) {
	if !utf8.Valid(out) {
		return types.PluginUpdate{}, ErrInvalidUTF8
	}

	trimmed := bytes.TrimSpace(out)
	if isNull(trimmed) {
		return types.PluginUpdate{Done: true}, nil
	}

	variant := p
	if variant == ProtocolAuto {
		switch {
		case len(trimmed) > 0 && trimmed[0] == '[':
			variant = ProtocolFrame
		case len(trimmed) > 0 && trimmed[0] == '{':
			variant = ProtocolUpdate
		default:
			return types.PluginUpdate{}, fmt.Errorf("%w: expected a frame or an update object", ErrMalformedUpdate)
		}
	}

	switch variant {
	case ProtocolFrame:
		frame, err := decodeFrame(trimmed, width, height)
		if err != nil {
			return types.PluginUpdate{}, err
		}
		return types.PluginUpdate{State: frame}, nil

	case ProtocolUpdate:
		var obj updateObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return types.PluginUpdate{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
		}
		update := types.PluginUpdate{Done: obj.Done, LogMessage: obj.LogMessage}
		if obj.Done || isNull(obj.State) {
			update.Done = true
			return update, nil
		}
		frame, err := decodeFrame(obj.State, width, height)
		if err != nil {
			return types.PluginUpdate{}, err
		}
		update.State = frame
		return update, nil

	default:
		return types.PluginUpdate{}, fmt.Errorf("unknown plugin protocol %v", p)
	}
}

// isNull reports whether data is missing or the JSON null literal
func isNull(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

// decodeFrame decodes a height x width array of 4-byte colour quads.
// Quads are decoded as ints so short, long and out of range values are
// rejected rather than silently truncated.
func decodeFrame(data []byte, width, height int) (types.FrameBuffer, error) {
	var raw [][][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	if len(raw) != height {
		return nil, fmt.Errorf("%w: got %d rows, want %d", ErrFrameSize, len(raw), height)
	}

	frame := make(types.FrameBuffer, height)
	for y, row := range raw {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrFrameSize, y, len(row), width)
		}
		frame[y] = make([]types.Color, width)
		for x, quad := range row {
			if len(quad) != len(types.Color{}) {
				return nil, fmt.Errorf("%w: pixel (%d,%d) has %d channels", ErrMalformedUpdate, x, y, len(quad))
			}
			for i, v := range quad {
				if v < 0 || v > 255 {
					return nil, fmt.Errorf("%w: pixel (%d,%d) channel %d out of range: %d", ErrMalformedUpdate, x, y, i, v)
				}
				frame[y][x][i] = uint8(v)
			}
		}
	}
	return frame, nil
}
