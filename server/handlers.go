package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/TFMV/graphview/export"
	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/render"
	"github.com/TFMV/graphview/viewer"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

var errSessionNotFound = errors.New("session not found")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeViewerError maps viewer and selector errors to status codes.
func writeViewerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, viewer.ErrUnmounted):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, graph.ErrNodeNotFound), errors.Is(err, errSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, render.ErrGPUUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// decodeBody decodes and validates a JSON body. An empty body leaves dst
// at its zero value. On failure it writes 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	exp := s.currentExport()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"sessions": len(s.SessionIDs()),
		"nodes":    len(exp.Nodes),
		"edges":    len(exp.Edges),
	})
}

// withModel runs fn against the model of the session named by the
// "session" query parameter, or against the reference layout when absent.
func (s *Server) withModel(r *http.Request, fn func(*graph.Model) error) error {
	id := r.URL.Query().Get("session")
	if id == "" {
		return fn(s.referenceModel(r.Context()))
	}
	e, ok := s.lookup(id)
	if !ok {
		return errSessionNotFound
	}
	return e.viewer.View(fn)
}

// handleGraphSnapshot serves the JSON snapshot. A min_strength query
// parameter keeps only edges at least that strong.
func (s *Server) handleGraphSnapshot(w http.ResponseWriter, r *http.Request) {
	minStrength, err := floatParam(r, "min_strength")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	meta := s.currentExport().Metadata
	var snap export.Snapshot
	err = s.withModel(r, func(m *graph.Model) error {
		snap = export.NewSnapshot(m, meta)
		if minStrength != nil {
			snap.Edges = m.FilterEdges(func(e *models.Edge) bool { return e.Strength >= *minStrength })
			if snap.Edges == nil {
				snap.Edges = []models.Edge{}
			}
		}
		return nil
	})
	if err != nil {
		writeViewerError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="graph.json"`)
	writeJSON(w, http.StatusOK, snap)
}

// handleGraphCSV serves the node table, optionally restricted to one
// cluster.
func (s *Server) handleGraphCSV(w http.ResponseWriter, r *http.Request) {
	cluster, err := intParam(r, "cluster")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buf strings.Builder
	err = s.withModel(r, func(m *graph.Model) error {
		nodes := m.Nodes()
		if cluster != nil {
			nodes = m.FilterNodes(func(n *models.Node) bool {
				return n.Cluster != nil && *n.Cluster == *cluster
			})
		}
		return export.WriteNodesCSV(&buf, nodes)
	})
	if err != nil {
		writeViewerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="nodes.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, buf.String())
}

type nodeDetail struct {
	Node      models.Node   `json:"node"`
	Edges     []models.Edge `json:"edges"`
	Neighbors []models.Node `json:"neighbors"`
}

// handleNodeDetail returns one node with its incident edges and direct
// neighbours.
func (s *Server) handleNodeDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	var detail nodeDetail
	err := s.withModel(r, func(m *graph.Model) error {
		n, err := m.FindNodeByID(id)
		if err != nil {
			return err
		}
		detail.Node = n.Clone()
		detail.Edges = append([]models.Edge{}, m.FindIncidentEdges(id)...)
		connected := m.FindConnectedNodes(id)
		detail.Neighbors = make([]models.Node, 0, len(connected))
		for _, c := range connected {
			detail.Neighbors = append(detail.Neighbors, c.Clone())
		}
		return nil
	})
	if err != nil {
		writeViewerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func floatParam(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &v, nil
}

func intParam(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &v, nil
}
