package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/view"
	"github.com/TFMV/graphview/viewer"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS configuration.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is one pointer or view event from the embedding page.
type inbound struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"delta_y"`
	Button int     `json:"button"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	NodeID string  `json:"node_id"`
}

// dispatch applies msg to v. Events that do not change the view produce no
// reply; view changes are reported through the metrics callback.
func dispatch(v *viewer.Viewer, msg inbound) error {
	switch msg.Type {
	case "wheel":
		return v.Wheel(msg.X, msg.Y, msg.DeltaY)
	case "pointerdown":
		return v.PointerDown(msg.X, msg.Y, view.Button(msg.Button))
	case "pointermove":
		return v.PointerMove(msg.X, msg.Y)
	case "pointerup":
		return v.PointerUp(msg.X, msg.Y)
	case "pointerleave":
		v.PointerLeave()
		return nil
	case "resize":
		return v.Resize(msg.Width, msg.Height)
	case "select":
		return v.Select(msg.NodeID)
	case "focus":
		return v.FocusNode(msg.NodeID)
	case "fit":
		return v.FitToView()
	case "reset":
		return v.ResetView()
	}
	return &unknownEventError{msg.Type}
}

type unknownEventError struct{ typ string }

func (e *unknownEventError) Error() string { return "unknown event type " + e.typ }

// handleWebSocket streams session events to the client and applies the
// pointer events it sends. On connect the current state is pushed first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	e, ok := s.withSession(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger := s.logger.With(zap.String("session", e.viewer.ID()))
	events, unsubscribe := e.subscribe()
	replies := make(chan event, 16)
	done := make(chan struct{})

	go s.writePump(conn, events, replies, done, logger)

	st := describe(e.viewer)
	replies <- event{Type: "state", Report: &st.Report, Decision: &st.Decision, Transform: &st.Transform}

	defer func() {
		close(done)
		unsubscribe()
		conn.Close()
		logger.Debug("Websocket client disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Websocket read failed", zap.Error(err))
			}
			return
		}
		if err := dispatch(e.viewer, msg); err != nil {
			select {
			case replies <- event{Type: "error", Error: err.Error()}:
			case <-done:
				return
			}
			continue
		}
		if msg.Type == "pointermove" || msg.Type == "pointerleave" {
			hovered, _ := e.viewer.Selection()
			select {
			case replies <- event{Type: "hover", Node: nodeRef(e.viewer, hovered)}:
			default:
			}
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, events <-chan event, replies <-chan event, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(ev event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			logger.Debug("Failed to write websocket message", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-done:
			return
		case ev := <-replies:
			if !write(ev) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if !write(ev) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// nodeRef copies the node with the given id, or returns nil.
func nodeRef(v *viewer.Viewer, id string) *models.Node {
	if id == "" {
		return nil
	}
	var out *models.Node
	_ = v.View(func(m *graph.Model) error {
		if n, ok := m.Lookup(id); ok {
			c := n.Clone()
			out = &c
		}
		return nil
	})
	return out
}
