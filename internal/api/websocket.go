package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferrolink/otacore/internal/orchestrator"
)

// WebSocket constants.
const (
	// wsSendBufferSize is the per-device outbound frame buffer size.
	wsSendBufferSize = 64

	// helloTimeout is how long a fresh connection has to identify itself
	// before it is dropped.
	helloTimeout = 10 * time.Second
)

// upgrader configures the WebSocket upgrader. Devices are not browsers;
// there is no origin to check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// deviceConn is one device's live connection. It satisfies hub.Sender:
// frames queued with Send are drained by writePump onto the wire.
type deviceConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newDeviceConn(conn *websocket.Conn) *deviceConn {
	return &deviceConn{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		done: make(chan struct{}),
	}
}

// Send queues a frame without blocking. A full buffer means the device has
// stopped draining; the frame is refused rather than wedging the caller.
func (c *deviceConn) Send(data []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *deviceConn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close() //nolint:errcheck // teardown
	})
}

// handleDeviceWS upgrades the HTTP connection and runs the device session.
//
// The first frame must be a hello naming the device and its running
// version; a connection that stays silent past the hello deadline is cut.
// After the hello the engine takes over: it may push an offer immediately,
// and every later frame from the device is a progress report.
func (s *Server) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	hello, err := readHello(conn)
	if err != nil {
		s.logger.Warn("device hello failed", "remote", r.RemoteAddr, "error", err)
		// Tell the device why before hanging up.
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)) //nolint:errcheck // best effort
		conn.Close()                                                                     //nolint:errcheck // teardown
		return
	}

	dc := newDeviceConn(conn)
	go dc.writePump(s.cfg.WebSocket.PingInterval, s.cfg.WebSocket.PongTimeout)

	// Register before HandleConnect so an immediate offer has somewhere
	// to go.
	s.hub.Register(hello.DeviceID, dc)

	if _, err := s.engine.HandleConnect(r.Context(), hello.DeviceID, remoteIP(r), hello.Version); err != nil {
		s.logger.Error("device connect rejected",
			"device_id", hello.DeviceID, "error", err)
		s.hub.Unregister(hello.DeviceID, dc)
		dc.Close()
		return
	}

	go s.readPump(dc, hello.DeviceID)
}

// readHello reads and validates the identification frame.
func readHello(conn *websocket.Conn) (*orchestrator.Hello, error) {
	if err := conn.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return nil, err
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var hello orchestrator.Hello
	if err := json.Unmarshal(frame, &hello); err != nil {
		return nil, errors.New("malformed hello frame")
	}
	if hello.DeviceID == "" {
		return nil, errors.New("hello missing device_id")
	}
	return &hello, nil
}

// readPump reads progress reports until the connection drops, then records
// the disconnect.
func (s *Server) readPump(dc *deviceConn, deviceID string) {
	defer func() {
		s.hub.Unregister(deviceID, dc)
		dc.Close()
		// The request context died with the connection; disconnect
		// bookkeeping must still land.
		s.engine.HandleDisconnect(context.Background(), deviceID)
	}()

	cfg := s.cfg.WebSocket
	dc.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	dc.conn.SetReadDeadline(time.Now().Add(wait))
	dc.conn.SetPongHandler(func(string) error {
		return dc.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, frame, err := dc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "device_id", deviceID, "error", err)
			} else {
				s.logger.Debug("websocket closed", "device_id", deviceID, "error", err)
			}
			return
		}
		// Any frame from the device resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		dc.conn.SetReadDeadline(time.Now().Add(wait))

		var report orchestrator.Report
		if err := json.Unmarshal(frame, &report); err != nil {
			s.logger.Warn("malformed report frame", "device_id", deviceID)
			continue
		}
		if err := s.engine.HandleReport(context.Background(), deviceID, report); err != nil {
			s.logger.Warn("report rejected", "device_id", deviceID, "error", err)
		}
	}
}

// writePump drains queued frames onto the wire and keeps the connection
// alive with protocol-level pings.
func (c *deviceConn) writePump(pingInterval, pongTimeout int) {
	ticker := time.NewTicker(time.Duration(pingInterval) * time.Second)
	writeWait := time.Duration(pongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // teardown
	}()

	for {
		select {
		case <-c.done:
			//nolint:errcheck // Best-effort close message
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case frame := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remoteIP extracts the client address without the port.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
