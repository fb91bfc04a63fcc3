package inference

import (
	"fmt"
	"slices"
	"sync"
)

// Tensor is a dense float32 tensor passed to and from a backend
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape
func NewTensor(shape ...int64) *Tensor {
	return &Tensor{Shape: shape, Data: make([]float32, NumElements(shape))}
}

// NumElements returns the element count of a shape
func NumElements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// ModelSpec describes a model to load
type ModelSpec struct {
	Name    string
	Path    string
	Inputs  []string
	Outputs []string
}

// Model is a loaded model.
// Run reads the named inputs and fills the pre-shaped named outputs.
type Model interface {
	Run(inputs, outputs map[string]*Tensor) error
	Close() error
}

// Backend loads models
type Backend interface {
	Load(spec ModelSpec) (Model, error)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{
		IdentityBackendName: IdentityBackend{},
	}
)

// Register makes a backend available by name. Registering a name twice replaces the backend.
func Register(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = b
}

// Lookup returns the backend registered under name
func Lookup(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("inference: backend %q not registered (available: %v)", name, backendNamesLocked())
	}
	return b, nil
}

// Backends returns the registered backend names, sorted
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return backendNamesLocked()
}

func backendNamesLocked() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IdentityBackendName is the name of the pass-through backend
const IdentityBackendName = "identity"

// IdentityBackend loads models that copy the first same-sized input to each output,
// or zero the output when no input matches. The audio stage therefore returns the
// noisy waveform unchanged.
type IdentityBackend struct{}

// Load returns an identity model for spec
func (IdentityBackend) Load(spec ModelSpec) (Model, error) {
	return &identityModel{spec: spec}, nil
}

type identityModel struct {
	spec ModelSpec
}

func (m *identityModel) Run(inputs, outputs map[string]*Tensor) error {
	for _, name := range m.spec.Inputs {
		if _, ok := inputs[name]; !ok {
			return fmt.Errorf("identity %s: missing input %q", m.spec.Name, name)
		}
	}

	for _, outName := range m.spec.Outputs {
		out, ok := outputs[outName]
		if !ok {
			return fmt.Errorf("identity %s: missing output %q", m.spec.Name, outName)
		}

		src := m.matchingInput(inputs, len(out.Data))
		if src == nil {
			clear(out.Data)
			continue
		}
		copy(out.Data, src.Data)
	}
	return nil
}

func (m *identityModel) matchingInput(inputs map[string]*Tensor, n int) *Tensor {
	for _, name := range m.spec.Inputs {
		if in := inputs[name]; len(in.Data) == n {
			return in
		}
	}
	return nil
}

func (m *identityModel) Close() error { return nil }
