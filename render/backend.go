package render

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrGPUUnavailable is returned when the GPU backend is requested while the
// capability probe has locked rendering to the vector backend.
var ErrGPUUnavailable = errors.New("gpu rendering unavailable")

// RenderMode selects a rendering backend.
type RenderMode int

const (
	ModeVector RenderMode = iota
	ModeGPU
)

func (m RenderMode) String() string {
	switch m {
	case ModeGPU:
		return "gpu"
	default:
		return "vector"
	}
}

// ParseMode parses "vector" or "gpu" (case-insensitive).
func ParseMode(s string) (RenderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vector", "svg":
		return ModeVector, nil
	case "gpu", "webgl":
		return ModeGPU, nil
	default:
		return ModeVector, fmt.Errorf("unknown render mode: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m RenderMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *RenderMode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ExtInstancedArrays is the extension enabling instanced draws on WebGL1.
const ExtInstancedArrays = "ANGLE_instanced_arrays"

// Capability is the result of probing the host for GPU support.
type Capability struct {
	GPUContext bool     `json:"gpu_context" yaml:"gpu_context"`
	Extensions []string `json:"extensions" yaml:"extensions"`
}

// HasExtension reports whether name was advertised.
func (c Capability) HasExtension(name string) bool {
	return slices.ContainsFunc(c.Extensions, func(e string) bool { return strings.EqualFold(e, name) })
}

// Instancing reports whether hardware instancing can be used.
func (c Capability) Instancing() bool {
	return c.GPUContext && c.HasExtension(ExtInstancedArrays)
}

// Decision sources, from strongest to weakest.
const (
	SourceCapability = "capability"
	SourceOverride   = "override"
	SourceConfig     = "config"
	SourceEscalation = "escalation"
	SourceDefault    = "default"
)

// Decision is the selector's verdict for one evaluation.
type Decision struct {
	Mode RenderMode `json:"mode"`
	// Locked is true once the probe found no usable GPU.
	Locked bool `json:"locked"`
	// PromptEscalation asks the consumer to confirm a switch to GPU. The
	// selector never switches on its own.
	PromptEscalation bool   `json:"prompt_escalation"`
	LargeDataset     bool   `json:"large_dataset"`
	Source           string `json:"source"`
}

// SelectorConfig is the state injected at construction.
type SelectorConfig struct {
	// Override is the persisted manual choice, if any.
	Override *RenderMode
	// ForceGPU comes from the escalation configuration resource.
	ForceGPU bool
	// EscalationBytes is the serialized data size above which escalation is
	// offered.
	EscalationBytes int64
	// LargeThreshold is the node count above which large-dataset mode
	// engages.
	LargeThreshold int
}

// Default thresholds.
const (
	DefaultEscalationBytes = 100 << 20
	DefaultLargeThreshold  = 10000
)

// Selector decides between the vector and GPU backends.
//
// Precedence, strongest first: capability lock, manual override, forced GPU
// from configuration, then the size heuristic which only ever prompts.
type Selector struct {
	mu sync.Mutex

	probed     bool
	capability Capability

	override        *RenderMode
	forceGPU        bool
	escalationBytes int64
	largeThreshold  int

	escalationAccepted bool
	escalationDeclined bool
}

// NewSelector creates an unprobed selector. Until Probe runs, only the
// vector backend is selected.
func NewSelector(cfg SelectorConfig) *Selector {
	if cfg.EscalationBytes <= 0 {
		cfg.EscalationBytes = DefaultEscalationBytes
	}
	if cfg.LargeThreshold <= 0 {
		cfg.LargeThreshold = DefaultLargeThreshold
	}
	s := &Selector{
		forceGPU:        cfg.ForceGPU,
		escalationBytes: cfg.EscalationBytes,
		largeThreshold:  cfg.LargeThreshold,
	}
	if cfg.Override != nil {
		m := *cfg.Override
		s.override = &m
	}
	return s
}

// Probe records the host capability. Only the first call has effect, so a
// lock cannot be lifted later.
func (s *Selector) Probe(c Capability) Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probed {
		s.probed = true
		s.capability = c
	}
	return s.capability
}

// Locked reports whether GPU rendering is unavailable.
func (s *Selector) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockedLocked()
}

func (s *Selector) lockedLocked() bool {
	return !s.probed || !s.capability.GPUContext
}

// SetOverride records a manual backend choice. Requesting GPU while locked
// returns ErrGPUUnavailable and leaves the override unchanged.
func (s *Selector) SetOverride(m RenderMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == ModeGPU && s.lockedLocked() {
		return ErrGPUUnavailable
	}
	s.override = &m
	return nil
}

// ClearOverride removes the manual choice.
func (s *Selector) ClearOverride() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = nil
}

// Override returns the manual choice, if any.
func (s *Selector) Override() (RenderMode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override == nil {
		return ModeVector, false
	}
	return *s.override, true
}

// AcceptEscalation confirms a pending escalation prompt.
func (s *Selector) AcceptEscalation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockedLocked() {
		return ErrGPUUnavailable
	}
	s.escalationAccepted = true
	s.escalationDeclined = false
	return nil
}

// DeclineEscalation dismisses the prompt for the rest of the session.
func (s *Selector) DeclineEscalation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalationDeclined = true
	s.escalationAccepted = false
}

// IsLarge reports whether nodeCount engages large-dataset mode.
func (s *Selector) IsLarge(nodeCount int) bool {
	return nodeCount > s.largeThreshold
}

// Evaluate returns the backend for a graph whose serialized form is
// dataBytes long and which has nodeCount nodes.
func (s *Selector) Evaluate(dataBytes int64, nodeCount int) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Decision{Mode: ModeVector, LargeDataset: nodeCount > s.largeThreshold, Source: SourceDefault}
	if s.lockedLocked() {
		d.Locked = true
		d.Source = SourceCapability
		return d
	}

	switch {
	case s.override != nil:
		d.Mode = *s.override
		d.Source = SourceOverride
	case s.forceGPU:
		d.Mode = ModeGPU
		d.Source = SourceConfig
	case dataBytes > s.escalationBytes:
		d.Source = SourceEscalation
		if s.escalationAccepted {
			d.Mode = ModeGPU
		} else if !s.escalationDeclined {
			d.PromptEscalation = true
		}
	}
	return d
}
