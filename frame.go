package gbvs

import (
	"fmt"
	"image"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Frame is the node layout shared by every feature of one pyramid shape.
// Nodes are ordered level by level, row-major within a level. A Frame is
// immutable once built apart from its memoized kernels.
type Frame struct {
	// Working raster size node coordinates are expressed in.
	W, H   int
	Levels []int
	// (cols, rows) per level.
	Dims []image.Point
	// First node of each level; Offsets[len(Levels)] == N.
	Offsets []int
	N       int
	// Node centres in working-raster pixels and their level index.
	NodeX, NodeY []float64
	NodeLevel    []int
	Cyclic       bool
	Connect      Connectivity

	// Squared node distances, zero on the diagonal.
	dist2 *mat.Dense

	mu      sync.RWMutex
	kernels map[float64]*mat.Dense
}

func newFrame(w, h int, levels []int, cyclic bool, connect Connectivity, maxNodes int) (*Frame, error) {
	f := &Frame{
		W:       w,
		H:       h,
		Cyclic:  cyclic,
		Connect: connect,
		kernels: make(map[float64]*mat.Dense),
	}
	for _, l := range levels {
		cols, rows := levelDims(w, h, l)
		f.Levels = append(f.Levels, l)
		f.Dims = append(f.Dims, image.Pt(cols, rows))
		f.Offsets = append(f.Offsets, f.N)
		f.N += cols * rows
	}
	f.Offsets = append(f.Offsets, f.N)
	if f.N == 0 {
		return nil, fmt.Errorf("%w: no graph nodes for %v on %dx%d", ErrNoLevels, levels, w, h)
	}
	if f.N > maxNodes {
		return nil, fmt.Errorf("%w: %d nodes, limit %d", ErrGraphTooLarge, f.N, maxNodes)
	}

	f.NodeX = make([]float64, f.N)
	f.NodeY = make([]float64, f.N)
	f.NodeLevel = make([]int, f.N)
	for li, d := range f.Dims {
		sx := float64(w) / float64(d.X)
		sy := float64(h) / float64(d.Y)
		for y := range d.Y {
			for x := range d.X {
				i := f.Offsets[li] + y*d.X + x
				f.NodeX[i] = (float64(x) + 0.5) * sx
				f.NodeY[i] = (float64(y) + 0.5) * sy
				f.NodeLevel[i] = li
			}
		}
	}

	f.dist2 = mat.NewDense(f.N, f.N, nil)
	raw := f.dist2.RawMatrix()
	width := float64(w)
	for i := range f.N {
		row := i * raw.Stride
		for j := i + 1; j < f.N; j++ {
			dx := math.Abs(f.NodeX[i] - f.NodeX[j])
			if cyclic {
				dx = min(dx, width-dx)
			}
			dy := f.NodeY[i] - f.NodeY[j]
			d := dx*dx + dy*dy
			raw.Data[row+j] = d
			raw.Data[j*raw.Stride+i] = d
		}
	}
	return f, nil
}

// connected reports whether nodes i and j may share an edge.
func (f *Frame) connected(i, j int) bool {
	if i == j {
		return false
	}
	return f.Connect == ConnectAll || f.NodeLevel[i] == f.NodeLevel[j]
}

// Kernel returns exp(-dist²/2σ²) over permitted edges with
// σ = sigmaFrac · mean(W, H). The matrix is symmetric with a zero diagonal
// and is shared; callers must not modify it.
func (f *Frame) Kernel(sigmaFrac float64) *mat.Dense {
	f.mu.RLock()
	k, ok := f.kernels[sigmaFrac]
	f.mu.RUnlock()
	if ok {
		return k
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.kernels[sigmaFrac]; ok {
		return k
	}
	sigma := sigmaFrac * float64(f.W+f.H) / 2
	inv := 1 / (2 * sigma * sigma)
	k = mat.NewDense(f.N, f.N, nil)
	kr := k.RawMatrix()
	dr := f.dist2.RawMatrix()
	for i := range f.N {
		for j := range f.N {
			if !f.connected(i, j) {
				continue
			}
			kr.Data[i*kr.Stride+j] = math.Exp(-dr.Data[i*dr.Stride+j] * inv)
		}
	}
	f.kernels[sigmaFrac] = k
	return k
}

// Node returns the node index of (x, y) on level index li.
func (f *Frame) Node(li, x, y int) int {
	return f.Offsets[li] + y*f.Dims[li].X + x
}

type frameKey struct {
	w, h    int
	levels  string
	cyclic  bool
	connect Connectivity
}

// frameCache shares frames across features and compute calls. Lookups take
// the read lock; the write lock is held only while building a missing frame.
type frameCache struct {
	mu     sync.RWMutex
	frames map[frameKey]*Frame
}

func newFrameCache() *frameCache {
	return &frameCache{frames: make(map[frameKey]*Frame)}
}

func (c *frameCache) get(w, h int, levels []int, o *Options) (*Frame, error) {
	key := frameKey{
		w:       w,
		h:       h,
		levels:  fmt.Sprint(levels),
		cyclic:  o.CyclicType == DistanceCyclic,
		connect: o.Connect,
	}
	c.mu.RLock()
	f, ok := c.frames[key]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[key]; ok {
		return f, nil
	}
	f, err := newFrame(w, h, levels, key.cyclic, key.connect, o.MaxGraphNodes)
	if err != nil {
		return nil, err
	}
	c.frames[key] = f
	return f, nil
}
