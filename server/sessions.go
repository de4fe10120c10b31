package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/physics"
	"github.com/TFMV/graphview/render"
	"github.com/TFMV/graphview/view"
	"github.com/TFMV/graphview/viewer"
)

// event is pushed to WebSocket subscribers.
type event struct {
	Type      string                `json:"type"`
	Report    *viewer.MetricsReport `json:"report,omitempty"`
	Decision  *render.Decision      `json:"decision,omitempty"`
	Transform *view.Transform       `json:"transform,omitempty"`
	Node      *models.Node          `json:"node,omitempty"`
	Stats     *physics.Stats        `json:"stats,omitempty"`
	Error     string                `json:"error,omitempty"`
}

const subscriberBuffer = 64

// sessionEntry fans viewer callbacks out to subscribers. Slow subscribers
// miss events rather than block the viewer.
type sessionEntry struct {
	viewer *viewer.Viewer

	mu   sync.Mutex
	subs map[chan event]struct{}
}

func newSessionEntry() *sessionEntry {
	return &sessionEntry{subs: make(map[chan event]struct{})}
}

func (e *sessionEntry) publish(ev event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *sessionEntry) subscribe() (<-chan event, func()) {
	ch := make(chan event, subscriberBuffer)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
	}
}

func (e *sessionEntry) close() {
	if e.viewer != nil {
		e.viewer.Unmount()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		delete(e.subs, ch)
		close(ch)
	}
}

func (e *sessionEntry) options(base viewer.Options) viewer.Options {
	opts := base
	opts.OnMetricsReport = func(r viewer.MetricsReport) {
		e.publish(event{Type: "metrics", Report: &r})
	}
	opts.OnNodeSelect = func(n *models.Node) {
		ev := event{Type: "select"}
		if n != nil {
			c := n.Clone()
			ev.Node = &c
		}
		e.publish(ev)
	}
	opts.OnLayoutComplete = func(st physics.Stats) {
		e.publish(event{Type: "layout", Stats: &st})
	}
	return opts
}

type createSessionRequest struct {
	SessionID  string            `json:"session_id" validate:"omitempty,max=128"`
	Width      float64           `json:"width" validate:"omitempty,gt=0,lte=16384"`
	Height     float64           `json:"height" validate:"omitempty,gt=0,lte=16384"`
	Capability render.Capability `json:"capability"`
	Offload    *bool             `json:"offload"`
}

type sessionResponse struct {
	ID        string               `json:"id"`
	Decision  render.Decision      `json:"decision"`
	Report    viewer.MetricsReport `json:"report"`
	Transform view.Transform       `json:"transform"`
	Hovered   string               `json:"hovered,omitempty"`
	Selected  string               `json:"selected,omitempty"`
}

func describe(v *viewer.Viewer) sessionResponse {
	hovered, selected := v.Selection()
	return sessionResponse{
		ID:        v.ID(),
		Decision:  v.Decision(),
		Report:    v.Report(),
		Transform: v.Transform(),
		Hovered:   hovered,
		Selected:  selected,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID != "" {
		if _, exists := s.lookup(req.SessionID); exists {
			writeError(w, http.StatusConflict, "session already mounted")
			return
		}
	}

	opts := s.cfg.Viewer
	opts.SessionID = req.SessionID
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	opts.Capability = req.Capability
	opts.Store = s.store
	opts.Logger = s.logger
	opts.Metrics = s.metrics
	if req.Offload != nil {
		opts.Offload = *req.Offload
	}
	esc, err := s.escalation.Get(opts.SessionID)
	if err != nil {
		s.logger.Warn("Escalation config unavailable", zap.Error(err))
	}
	opts.Escalation = esc

	width, height := req.Width, req.Height
	if width == 0 {
		width = s.cfg.Width
	}
	if height == 0 {
		height = s.cfg.Height
	}

	exp := s.currentExport()
	entry := newSessionEntry()
	v, err := viewer.Mount(r.Context(), exp.Nodes, exp.Edges, width, height, entry.options(opts))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entry.viewer = v

	s.mu.Lock()
	if _, exists := s.sessions[v.ID()]; exists {
		s.mu.Unlock()
		v.Unmount()
		writeError(w, http.StatusConflict, "session already mounted")
		return
	}
	s.sessions[v.ID()] = entry
	s.mu.Unlock()

	s.logger.Info("Session mounted", zap.String("session", v.ID()), zap.Stringer("mode", v.Decision().Mode))
	writeJSON(w, http.StatusCreated, describe(v))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.SessionIDs()})
}

// withSession resolves the {sessionID} parameter or writes 404.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request) (*sessionEntry, bool) {
	e, ok := s.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return e, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.withSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describe(e.viewer))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	e.close()
	s.escalation.Forget(id)
	s.logger.Info("Session unmounted", zap.String("session", id))
	w.WriteHeader(http.StatusNoContent)
}

type renderErrorResponse struct {
	Error       string            `json:"error"`
	Mode        render.RenderMode `json:"mode"`
	Recoverable bool              `json:"recoverable"`
	// Reload is where the shell should send the user to retry. The server
	// never retries on its own.
	Reload string `json:"reload"`
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	e, ok := s.withSession(w, r)
	if !ok {
		return
	}
	out, err := e.viewer.RenderFrame()
	if err != nil {
		if re, ok := viewer.IsRenderError(err); ok {
			e.publish(event{Type: "render_error", Error: re.Error()})
			writeJSON(w, http.StatusInternalServerError, renderErrorResponse{
				Error:       re.Error(),
				Mode:        re.Mode,
				Recoverable: re.Recoverable,
				Reload:      r.URL.Path,
			})
			return
		}
		writeViewerError(w, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("X-Render-Mode", out.Mode.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Body)
}

type modeRequest struct {
	// Mode is "vector", "gpu", or empty/"auto" to clear the override.
	Mode string `json:"mode" validate:"omitempty,oneof=vector svg gpu webgl auto"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	e, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var err error
	if req.Mode == "" || req.Mode == "auto" {
		err = e.viewer.ClearRenderMode(r.Context())
	} else {
		mode, perr := render.ParseMode(req.Mode)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		err = e.viewer.SetRenderMode(r.Context(), mode)
	}
	if err != nil {
		writeViewerError(w, err)
		return
	}
	d := e.viewer.Decision()
	e.publish(event{Type: "mode", Decision: &d})
	writeJSON(w, http.StatusOK, describe(e.viewer))
}

type escalationRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) handleEscalation(w http.ResponseWriter, r *http.Request) {
	e, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req escalationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var err error
	if req.Accept {
		err = e.viewer.AcceptEscalation()
	} else {
		err = e.viewer.DeclineEscalation()
	}
	if err != nil {
		writeViewerError(w, err)
		return
	}
	d := e.viewer.Decision()
	e.publish(event{Type: "mode", Decision: &d})
	writeJSON(w, http.StatusOK, describe(e.viewer))
}

type viewRequest struct {
	Action    string          `json:"action" validate:"required,oneof=fit reset focus transform resize relayout select"`
	NodeID    string          `json:"node_id"`
	Transform *view.Transform `json:"transform"`
	Width     float64         `json:"width"`
	Height    float64         `json:"height"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	e, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req viewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := applyView(r, e.viewer, req); err != nil {
		writeViewerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(e.viewer))
}

var errBadRequest = errors.New("bad request")

func applyView(r *http.Request, v *viewer.Viewer, req viewRequest) error {
	switch req.Action {
	case "fit":
		return v.FitToView()
	case "reset":
		return v.ResetView()
	case "focus":
		return v.FocusNode(req.NodeID)
	case "select":
		return v.Select(req.NodeID)
	case "transform":
		if req.Transform == nil {
			return errors.Join(errBadRequest, errors.New("transform required"))
		}
		return v.SetTransform(*req.Transform)
	case "resize":
		return v.Resize(req.Width, req.Height)
	case "relayout":
		return v.Relayout(r.Context())
	}
	return errors.Join(errBadRequest, errors.New("unknown action "+req.Action))
}
