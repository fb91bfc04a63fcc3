package tensor

import (
	"fmt"
	"image"
	"sync"

	"github.com/Sound-Bartender/MJPEGApp/internal/audio"
)

// State is the accumulator lifecycle state
type State int

const (
	StateIdle     State = iota // active half empty
	StateFilling               // active half partially filled
	StateReady                 // active half complete, awaiting Drain
	StateDraining              // completed half being copied out
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Window is a completed, detached model input
type Window struct {
	Video     []float32 // Frames x FrameSize x FrameSize luma in [0,1]
	Audio     []float32 // WindowSamples samples in [-1,1)
	Timestamp int64     // timestamp of the window's first audio chunk
	Seq       uint64
}

// half is one slot of the two-slot arena
type half struct {
	video      []float32
	audio      []float32
	frames     int // video frames written
	chunks     int // audio chunks written
	timestamps []int64
}

func newHalf(cfg Config) half {
	return half{
		video:      make([]float32, cfg.VideoLen()),
		audio:      make([]float32, cfg.WindowSamples),
		timestamps: make([]int64, cfg.Frames),
	}
}

func (h *half) clear() {
	clear(h.video)
	clear(h.audio)
	clear(h.timestamps)
	h.frames = 0
	h.chunks = 0
}

// Stats is a snapshot of accumulator progress
type Stats struct {
	State       string `json:"state"`
	Active      int    `json:"active_half"`
	Frames      int    `json:"frames"`
	Chunks      int    `json:"chunks"`
	KeepFrames  int    `json:"keep_frames"`
	WindowsDone uint64 `json:"windows_done"`
}

// Accumulator assembles windows from aligned frames and chunks.
// It is safe for concurrent use. cfg is never written after construction;
// the overlap lives in keep, guarded by mu.
type Accumulator struct {
	cfg Config

	mu     sync.Mutex
	keep   int
	halves [2]half
	active int
	state  State
	seq    uint64
}

// NewAccumulator creates an accumulator for the given geometry
func NewAccumulator(cfg Config) (*Accumulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid window config: %w", err)
	}
	return &Accumulator{
		cfg:    cfg,
		keep:   cfg.KeepFrames,
		halves: [2]half{newHalf(cfg), newHalf(cfg)},
	}, nil
}

// Config returns the accumulator geometry with the current overlap
func (a *Accumulator) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := a.cfg
	cfg.KeepFrames = a.keep
	return cfg
}

// SetKeepFrames changes the overlap used by subsequent drains
func (a *Accumulator) SetKeepFrames(n int) error {
	cfg := a.cfg
	cfg.KeepFrames = n
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	a.keep = n
	a.mu.Unlock()
	return nil
}

// AddVideoFrame converts img to luma and appends it to the active half
func (a *Accumulator) AddVideoFrame(img image.Image) error {
	if err := a.validateFrame(img); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	h := &a.halves[a.active]
	if h.frames >= a.cfg.Frames {
		return ErrWindowFull
	}
	a.writeFrameLocked(h, img)
	a.updateStateLocked()
	return nil
}

// AddAudioChunk converts a PCM16 little-endian chunk and appends it to the active half
func (a *Accumulator) AddAudioChunk(chunk []byte, timestamp int64) error {
	if err := a.validateChunk(chunk); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	h := &a.halves[a.active]
	if h.chunks >= a.cfg.Frames {
		return ErrWindowFull
	}
	a.writeChunkLocked(h, chunk, timestamp)
	a.updateStateLocked()
	return nil
}

// AddPair appends an aligned frame and chunk together.
// Both are validated before either is written, so a rejected pair leaves no partial data.
func (a *Accumulator) AddPair(img image.Image, chunk []byte, timestamp int64) error {
	if err := a.validateFrame(img); err != nil {
		return err
	}
	if err := a.validateChunk(chunk); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	h := &a.halves[a.active]
	if h.frames >= a.cfg.Frames || h.chunks >= a.cfg.Frames {
		return ErrWindowFull
	}
	a.writeFrameLocked(h, img)
	a.writeChunkLocked(h, chunk, timestamp)
	a.updateStateLocked()
	return nil
}

// Ready reports whether both buffers of the active half are full
func (a *Accumulator) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readyLocked()
}

// Drain emits the completed active half as a detached Window and swaps halves.
// The new active half is seeded with KeepFrames frames and their audio from the
// completed window; everything else is cleared.
func (a *Accumulator) Drain() (*Window, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.readyLocked() {
		return nil, ErrNotReady
	}
	a.state = StateDraining

	done := &a.halves[a.active]
	a.active = 1 - a.active
	next := &a.halves[a.active]

	a.seq++
	w := &Window{
		Video:     append([]float32(nil), done.video...),
		Audio:     append([]float32(nil), done.audio...),
		Timestamp: done.timestamps[0],
		Seq:       a.seq,
	}

	next.clear()
	if keep := a.keep; keep > 0 {
		first := 0
		if a.cfg.CarryTail {
			first = a.cfg.Frames - keep
		}
		px := a.cfg.FramePixels()
		spf := a.cfg.SamplesPerFrame()

		copy(next.video, done.video[first*px:(first+keep)*px])
		copy(next.audio, done.audio[first*spf:(first+keep)*spf])
		copy(next.timestamps, done.timestamps[first:first+keep])
		next.frames = keep
		next.chunks = keep
	}
	done.clear()

	a.updateStateLocked()
	return w, nil
}

// Reset clears both halves
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.halves[0].clear()
	a.halves[1].clear()
	a.active = 0
	a.state = StateIdle
}

// State returns the current lifecycle state
func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Stats returns a snapshot of the active half
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := &a.halves[a.active]
	return Stats{
		State:       a.state.String(),
		Active:      a.active,
		Frames:      h.frames,
		Chunks:      h.chunks,
		KeepFrames:  a.keep,
		WindowsDone: a.seq,
	}
}

func (a *Accumulator) readyLocked() bool {
	h := &a.halves[a.active]
	return h.frames == a.cfg.Frames && h.chunks == a.cfg.Frames
}

func (a *Accumulator) updateStateLocked() {
	h := &a.halves[a.active]
	switch {
	case a.readyLocked():
		a.state = StateReady
	case h.frames == 0 && h.chunks == 0:
		a.state = StateIdle
	default:
		a.state = StateFilling
	}
}

func (a *Accumulator) validateFrame(img image.Image) error {
	if img == nil {
		return &ValidationError{Media: "video", Want: "image", Got: "nil"}
	}
	b := img.Bounds()
	if b.Dx() != a.cfg.FrameSize || b.Dy() != a.cfg.FrameSize {
		return &ValidationError{
			Media: "video",
			Want:  fmt.Sprintf("%dx%d", a.cfg.FrameSize, a.cfg.FrameSize),
			Got:   fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		}
	}
	return nil
}

func (a *Accumulator) validateChunk(chunk []byte) error {
	if len(chunk) != a.cfg.ChunkBytes() {
		return &ValidationError{
			Media: "audio",
			Want:  fmt.Sprintf("%d bytes", a.cfg.ChunkBytes()),
			Got:   fmt.Sprintf("%d bytes", len(chunk)),
		}
	}
	return nil
}

func (a *Accumulator) writeFrameLocked(h *half, img image.Image) {
	px := a.cfg.FramePixels()
	dst := h.video[h.frames*px : (h.frames+1)*px]
	Luma(dst, img, a.cfg.Rotate)
	h.frames++
}

func (a *Accumulator) writeChunkLocked(h *half, chunk []byte, timestamp int64) {
	spf := a.cfg.SamplesPerFrame()
	dst := h.audio[h.chunks*spf : (h.chunks+1)*spf]
	audio.DecodePCM16(dst, chunk)
	h.timestamps[h.chunks] = timestamp
	h.chunks++
}
