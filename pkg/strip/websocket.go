package strip

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/fkcurrie/matricks-golang/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Viewer streams frames to a remote viewer over a WebSocket. Each frame
// is one binary message: width and height as big endian uint16, then
// four bytes per LED in strip order.
type Viewer struct {
	conn *websocket.Conn
	opts Options
	leds []types.Color
	done chan struct{}
	wg   sync.WaitGroup

	errMu   sync.Mutex
	readErr error
	once    sync.Once
}

// NewViewer connects to the viewer at opts.Output
func NewViewer(opts Options) (*Viewer, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("websocket driver needs a viewer URL")
	}

	conn, _, err := websocket.DefaultDialer.Dial(opts.Output, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to viewer: %w", err)
	}

	v := &Viewer{
		conn: conn,
		opts: opts,
		leds: make([]types.Color, opts.Count),
		done: make(chan struct{}),
	}

	v.wg.Add(2)
	go v.readPump()
	go v.pingPump()

	return v, nil
}

// LEDs returns the pixel buffer
func (v *Viewer) LEDs() []types.Color {
	return v.leds
}

// Render sends the buffer as one binary message
func (v *Viewer) Render() error {
	v.errMu.Lock()
	err := v.readErr
	v.errMu.Unlock()
	if err != nil {
		return fmt.Errorf("viewer connection lost: %w", err)
	}

	msg := make([]byte, 4+len(v.leds)*4)
	binary.BigEndian.PutUint16(msg[0:], uint16(v.opts.Width))
	binary.BigEndian.PutUint16(msg[2:], uint16(v.opts.Height))
	for i, c := range v.leds {
		copy(msg[4+i*4:], c[:])
	}

	v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := v.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

// Close says goodbye to the viewer and stops the pumps
func (v *Viewer) Close() error {
	var err error
	v.once.Do(func() {
		close(v.done)
		v.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = v.conn.Close()
		v.wg.Wait()
	})
	return err
}

// readPump consumes control frames so pongs and close are processed
func (v *Viewer) readPump() {
	defer v.wg.Done()

	v.conn.SetReadLimit(512)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			select {
			case <-v.done:
			default:
				v.errMu.Lock()
				v.readErr = err
				v.errMu.Unlock()
			}
			return
		}
	}
}

// pingPump keeps the connection alive
func (v *Viewer) pingPump() {
	defer v.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			if err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func init() {
	Register("websocket", func(opts Options) (Driver, error) {
		return NewViewer(opts)
	})
}
