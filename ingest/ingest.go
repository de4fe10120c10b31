// Package ingest decodes graph exports into nodes and edges. Malformed or
// missing fields degrade to defaults; only an undecodable document fails.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TFMV/graphview/models"
)

// ErrInvalidExport is returned when a document cannot be decoded at all.
var ErrInvalidExport = errors.New("invalid graph export")

// Export is a decoded graph document.
type Export struct {
	Nodes    []models.Node          `json:"nodes"`
	Edges    []models.Edge          `json:"edges"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// Bytes is the size of the source document.
	Bytes int64 `json:"-"`
}

// DataProcessor defines the interface that all data processors must implement
type DataProcessor interface {
	// ProcessData takes raw data bytes and returns the decoded export
	ProcessData(data []byte) (*Export, error)

	// GetName returns the name of the processor
	GetName() string
}

// flexString accepts either a JSON string or a JSON number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Objects, arrays and booleans are not usable ids.
		*s = ""
		return nil
	}
	*s = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string. Anything else is
// treated as absent.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if v, err := n.Float64(); err == nil {
			f.v, f.ok = v, true
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			f.v, f.ok = v, true
		}
	}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}

// flexBool accepts a JSON boolean, 0/1 or "true"/"false".
type flexBool struct {
	v  bool
	ok bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "1", "yes":
		f.v, f.ok = true, true
	case "false", "0", "no":
		f.v, f.ok = false, true
	}
	return nil
}

type rawNode struct {
	ID          flexString `json:"id"`
	Label       flexString `json:"label"`
	Cluster     flexFloat  `json:"cluster"`
	Degree      flexFloat  `json:"degree"`
	Betweenness flexFloat  `json:"betweenness"`
	Eigenvector flexFloat  `json:"eigenvector"`
}

type rawEdge struct {
	Source   flexString `json:"source"`
	Target   flexString `json:"target"`
	Strength flexFloat  `json:"strength"`
	Weight   flexFloat  `json:"weight"`
	Rerank   flexFloat  `json:"rerank"`
	Yes      flexBool   `json:"yes"`
}

// JSONProcessor handles the analytics graph export:
//
//	{"nodes": [{"id", "label"?, "cluster"?, "degree"?, "betweenness"?, "eigenvector"?}],
//	 "edges": [{"source", "target", "strength"?, "rerank"?, "yes"?}],
//	 "metadata"?: {...}}
type JSONProcessor struct{}

// NewJSONProcessor creates a new JSON processor
func NewJSONProcessor() *JSONProcessor {
	return &JSONProcessor{}
}

// GetName returns the name of the processor
func (p *JSONProcessor) GetName() string {
	return "JSON Processor"
}

// ProcessData decodes a JSON export. A missing label falls back to the id,
// a missing strength defaults to zero and "weight" is accepted in its place.
// Node and edge validation beyond that is left to the graph model.
func (p *JSONProcessor) ProcessData(data []byte) (*Export, error) {
	var doc struct {
		Nodes    []rawNode              `json:"nodes"`
		Edges    []rawEdge              `json:"edges"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}

	out := &Export{
		Nodes:    make([]models.Node, 0, len(doc.Nodes)),
		Edges:    make([]models.Edge, 0, len(doc.Edges)),
		Metadata: doc.Metadata,
		Bytes:    int64(len(data)),
	}
	for _, rn := range doc.Nodes {
		n := models.NewNode(string(rn.ID), string(rn.Label))
		if rn.Cluster.ok {
			c := int(rn.Cluster.v)
			n.Cluster = &c
		}
		n.Degree = rn.Degree.ptr()
		n.Betweenness = rn.Betweenness.ptr()
		n.Eigenvector = rn.Eigenvector.ptr()
		out.Nodes = append(out.Nodes, n)
	}
	for _, re := range doc.Edges {
		strength := 0.0
		switch {
		case re.Strength.ok:
			strength = re.Strength.v
		case re.Weight.ok:
			strength = re.Weight.v
		}
		e := models.NewEdge(string(re.Source), string(re.Target), strength)
		e.Rerank = re.Rerank.ptr()
		if re.Yes.ok {
			y := re.Yes.v
			e.Yes = &y
		}
		out.Edges = append(out.Edges, e)
	}
	return out, nil
}

// CSVProcessor handles edge-list CSV data. Nodes are the distinct endpoint
// ids in first-seen order.
type CSVProcessor struct{}

// NewCSVProcessor creates a new CSV processor
func NewCSVProcessor() *CSVProcessor {
	return &CSVProcessor{}
}

// GetName returns the name of the processor
func (p *CSVProcessor) GetName() string {
	return "CSV Processor"
}

// ProcessData processes CSV data
func (p *CSVProcessor) ProcessData(data []byte) (*Export, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading CSV header: %v", ErrInvalidExport, err)
	}

	sourceIdx, targetIdx, strengthIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "source", "from", "src":
			sourceIdx = i
		case "target", "to", "dst":
			targetIdx = i
		case "strength", "weight", "value":
			strengthIdx = i
		}
	}
	if sourceIdx == -1 || targetIdx == -1 {
		return nil, fmt.Errorf("%w: CSV must contain source and target columns", ErrInvalidExport)
	}

	out := &Export{Bytes: int64(len(data))}
	seen := make(map[string]bool)
	addNode := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out.Nodes = append(out.Nodes, models.NewNode(id, ""))
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading CSV row: %v", ErrInvalidExport, err)
		}
		if sourceIdx >= len(row) || targetIdx >= len(row) {
			continue
		}
		src, dst := strings.TrimSpace(row[sourceIdx]), strings.TrimSpace(row[targetIdx])
		addNode(src)
		addNode(dst)

		strength := 0.0
		if strengthIdx >= 0 && strengthIdx < len(row) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[strengthIdx]), 64); err == nil {
				strength = v
			}
		}
		out.Edges = append(out.Edges, models.NewEdge(src, dst, strength))
	}
	return out, nil
}

// GetProcessor returns the appropriate processor for the given format
func GetProcessor(format string) (DataProcessor, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json", "":
		return NewJSONProcessor(), nil
	case "csv":
		return NewCSVProcessor(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// LoadFile reads path and decodes it with the processor matching its
// extension.
func LoadFile(path string) (*Export, error) {
	proc, err := GetProcessor(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return proc.ProcessData(data)
}
