//go:build onnxruntime

package ortbackend

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Sound-Bartender/MJPEGApp/internal/inference"
)

// Name is the registry name of this backend
const Name = "onnxruntime"

// LibraryPathEnv overrides the ONNX Runtime shared library location
const LibraryPathEnv = "ONNXRUNTIME_LIB"

func init() {
	inference.Register(Name, &Backend{})
}

// Backend loads .onnx files into ONNX Runtime sessions.
// The runtime environment is initialized once, on first Load.
type Backend struct {
	initOnce sync.Once
	initErr  error
}

func (b *Backend) init() error {
	b.initOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if path := os.Getenv(LibraryPathEnv); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			b.initErr = fmt.Errorf("onnxruntime: initialize environment: %w", err)
		}
	})
	return b.initErr
}

// Load creates a session for spec.Path with spec's input and output names
func (b *Backend) Load(spec inference.ModelSpec) (inference.Model, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	if spec.Path == "" {
		return nil, fmt.Errorf("onnxruntime: model %s has no path", spec.Name)
	}

	session, err := ort.NewDynamicAdvancedSession(spec.Path, spec.Inputs, spec.Outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("onnxruntime: open %s: %w", spec.Path, err)
	}
	return &model{spec: spec, session: session}, nil
}

type model struct {
	spec    inference.ModelSpec
	session *ort.DynamicAdvancedSession
}

func (m *model) Run(inputs, outputs map[string]*inference.Tensor) error {
	ins := make([]ort.Value, 0, len(m.spec.Inputs))
	outs := make([]ort.Value, 0, len(m.spec.Outputs))
	defer func() {
		for _, v := range ins {
			v.Destroy()
		}
		for _, v := range outs {
			v.Destroy()
		}
	}()

	for _, name := range m.spec.Inputs {
		in, ok := inputs[name]
		if !ok {
			return fmt.Errorf("%s: missing input %q", m.spec.Name, name)
		}
		t, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
		if err != nil {
			return fmt.Errorf("%s: input %q: %w", m.spec.Name, name, err)
		}
		ins = append(ins, t)
	}

	dsts := make([]*inference.Tensor, 0, len(m.spec.Outputs))
	for _, name := range m.spec.Outputs {
		out, ok := outputs[name]
		if !ok {
			return fmt.Errorf("%s: missing output %q", m.spec.Name, name)
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(out.Shape...))
		if err != nil {
			return fmt.Errorf("%s: output %q: %w", m.spec.Name, name, err)
		}
		outs = append(outs, t)
		dsts = append(dsts, out)
	}

	if err := m.session.Run(ins, outs); err != nil {
		return fmt.Errorf("%s: run: %w", m.spec.Name, err)
	}

	for i, v := range outs {
		copy(dsts[i].Data, v.(*ort.Tensor[float32]).GetData())
	}
	return nil
}

func (m *model) Close() error {
	return m.session.Destroy()
}
