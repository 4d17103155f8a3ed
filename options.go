package gbvs

import (
	"fmt"
	"image"
	"io"
	"log"
	"runtime"
	"slices"

	"github.com/setanarut/gbvs/utils"
)

// CyclicType selects the spatial distance used between graph nodes.
type CyclicType int

const (
	// DistancePlanar is ordinary Euclidean distance for rectilinear images.
	DistancePlanar CyclicType = 1
	// DistanceCyclic wraps the horizontal axis at the image width, for
	// 360° equirectangular images.
	DistanceCyclic CyclicType = 2
)

// Connectivity is the rule deciding which node pairs get an edge.
type Connectivity int

const (
	// ConnectAll connects every node to every other node on every level.
	ConnectAll Connectivity = iota
	// ConnectIntraLevel connects nodes only within their own pyramid level.
	ConnectIntraLevel
)

// Kernel selects how feature dissimilarity enters an activation edge weight.
type Kernel int

const (
	// KernelDissimilarity weighs an edge by d(i,j) * exp(-dist²/2σ²).
	// Nodes unlike their surroundings collect the most mass.
	KernelDissimilarity Kernel = iota
	// KernelAffinity weighs an edge by exp(-d(i,j)/σf) * exp(-dist²/2σ²).
	KernelAffinity
)

// Dissimilarity is the feature distance between two nodes.
type Dissimilarity int

const (
	// DissimAbs is |a - b|.
	DissimAbs Dissimilarity = iota
	// DissimLogRatio is |log(a / b)| on magnitudes.
	DissimLogRatio
)

const (
	// NormalizeGraph runs the activation-weighted Markov normalization.
	NormalizeGraph = 0
	// NormalizeMax rescales each map by its local-maxima spread.
	NormalizeMax = 1
)

type Options struct {
	// Feature channel letters, e.g. "CIO". See Channel for the built-in set.
	Channels string
	// Pyramid levels; level l subsamples the working raster by 2^l.
	// Must be strictly increasing. Ideal start: {2, 3, 4}.
	Levels []int
	// Deepest level ever computed. Deeper configured levels are dropped.
	MaxComputeLevel int
	// A level whose rows or cols fall below this is dropped.
	MinLevelDim int
	// Larger side of the working raster feature maps are extracted at.
	// The input is never upsampled. Ideal start: 128.
	// Higher values grow the graph quadratically.
	ComputeMaxSize int
	// Larger side of the output saliency map. Ideal start: 32.
	SalmapMaxSize int

	// Channel weights.
	ColorWeight        float64
	DKLWeight          float64
	IntensityWeight    float64
	OrientationWeight  float64
	ContrastWeight     float64
	FlickerWeight      float64
	MotionWeight       float64
	BlurWeight         float64
	SegmentationWeight float64
	FaceWeight         float64
	PerspectiveWeight  float64

	// Gabor orientations in degrees, used by the orientation and motion channels.
	GaborAngles []float64
	// Pixel shift between frames the motion channel looks for.
	MotionShift int
	// Gaussian radius (working pixels) of the contrast channel's local mean.
	ContrastRadius float64
	// Block side of the blur channel's spectral sharpness estimate.
	BlurBlockSize int
	// Palette size and method of the segmentation channel. KMeans picks its
	// starting centres at random, so with it the S channel can differ between
	// runs on the same input.
	SegmentColors int
	SegmentMethod utils.PaletteMethod

	// Spatial spread of activation edges as a fraction of the mean working
	// dimension. Ideal start: 0.15. Too low => isolated nodes, too high => the
	// activation no longer depends on location.
	SigmaFracAct float64
	// Spatial spread of normalization edges. Ideal start: 0.06.
	SigmaFracNorm float64
	// Number of normalization passes. Ideal start: 1.
	NumNormIters int
	// Power iteration stops when max|v(k+1) - v(k)| < Tol.
	Tol float64
	// Power iteration cap per normalization pass.
	PowerIterCap int
	// DistancePlanar (1) or DistanceCyclic (2).
	CyclicType CyclicType
	Connect    Connectivity
	Kernel     Kernel
	Dissim     Dissimilarity
	// NormalizeGraph (0) or NormalizeMax (1). Anything else is rejected.
	NormalizationType int
	// Run graph normalization on the coarsest level only; other levels are
	// max-normalized. The coarsest level is max-normalized after its graph
	// pass so every level ends on the same scale.
	NormalizeTopChannelMaps bool
	// Average sub-features sharing a channel before weighting.
	AverageByFeatureChannel bool
	// Matrices with a smaller non-zero fraction take the sparse multiply path.
	SparseThreshold float64
	// Upper bound on graph nodes; larger frames fail with ErrGraphTooLarge.
	MaxGraphNodes int

	// Bias the map toward an estimated equator (360° content).
	EquatorialPrior bool
	// Gaussian spread, in squared degrees, of the equatorial prior.
	EquatorSpread float64
	// The salient-centre estimate is clamped to ±EquatorClamp·rows around
	// the geometric centre.
	EquatorClamp float64
	// Detections farther than this many standard deviations from the first
	// pass mean are rejected.
	FaceOutlierSigma float64

	// Final blur sigma as a fraction of the mean output dimension.
	BlurFrac float64

	// Channel worker count; <= 0 uses GOMAXPROCS.
	Workers int
	// Also fan out graph construction and solves per feature.
	ParallelGraphs bool

	// Optional collaborators. Detector feeds the face channel and the
	// equatorial prior; VanishingPoint feeds the linear perspective channel.
	Detector       Detector
	VanishingPoint VanishingPointFunc

	// Warnings and progress. Nil discards.
	Logger *log.Logger
	// Log a line per pipeline state.
	Verbose bool
}

func DefaultOptions() Options {
	return Options{
		Channels:        "CIO",
		Levels:          []int{2, 3, 4},
		MaxComputeLevel: 6,
		MinLevelDim:     2,
		ComputeMaxSize:  128,
		SalmapMaxSize:   32,

		ColorWeight:        1,
		DKLWeight:          1,
		IntensityWeight:    1,
		OrientationWeight:  1,
		ContrastWeight:     1,
		FlickerWeight:      1,
		MotionWeight:       1,
		BlurWeight:         1,
		SegmentationWeight: 1,
		FaceWeight:         1.5,
		PerspectiveWeight:  0.1,

		GaborAngles:    []float64{0, 45, 90, 135},
		MotionShift:    1,
		ContrastRadius: 3,
		BlurBlockSize:  8,
		SegmentColors:  6,
		SegmentMethod:  utils.PaletteMethodDominantColor,

		SigmaFracAct:            0.15,
		SigmaFracNorm:           0.06,
		NumNormIters:            1,
		Tol:                     1e-6,
		PowerIterCap:            1000,
		CyclicType:              DistancePlanar,
		Connect:                 ConnectAll,
		Kernel:                  KernelDissimilarity,
		Dissim:                  DissimAbs,
		NormalizationType:       NormalizeGraph,
		AverageByFeatureChannel: true,
		SparseThreshold:         0.25,
		MaxGraphNodes:           4096,

		EquatorSpread:    700,
		EquatorClamp:     0.1,
		FaceOutlierSigma: 1.3,

		BlurFrac: 0.02,
	}
}

// OptionsFromSize returns defaults tuned for an input of the given size.
// A 2:1 aspect ratio is taken to be an equirectangular panorama.
func OptionsFromSize(size image.Point) Options {
	opt := DefaultOptions()
	if size.X <= 0 || size.Y <= 0 {
		return opt
	}
	pixels := size.X * size.Y
	if pixels <= 256*256 {
		opt.ComputeMaxSize = 96
	} else if pixels > 1920*1080 {
		opt.ComputeMaxSize = 160
	}
	if size.X == 2*size.Y {
		opt.CyclicType = DistanceCyclic
		opt.EquatorialPrior = true
	}
	return opt
}

// Validate reports configuration errors. Channel letters are checked by
// the engine, which owns the channel registry.
func (o *Options) Validate() error {
	if len(o.Levels) == 0 {
		return ErrNoLevels
	}
	for i, l := range o.Levels {
		if l < 0 {
			return fmt.Errorf("%w: negative level %d", ErrInvalidOptions, l)
		}
		if i > 0 && l <= o.Levels[i-1] {
			return fmt.Errorf("%w: levels %v are not strictly increasing", ErrInvalidOptions, o.Levels)
		}
	}
	if o.NormalizationType != NormalizeGraph && o.NormalizationType != NormalizeMax {
		return fmt.Errorf("%w: %d", ErrNormalizationType, o.NormalizationType)
	}
	if o.CyclicType != DistancePlanar && o.CyclicType != DistanceCyclic {
		return fmt.Errorf("%w: cyclic type %d", ErrInvalidOptions, o.CyclicType)
	}
	if o.ComputeMaxSize <= 0 || o.SalmapMaxSize <= 0 {
		return fmt.Errorf("%w: non-positive map size", ErrInvalidOptions)
	}
	if o.SigmaFracAct <= 0 || o.SigmaFracNorm <= 0 {
		return fmt.Errorf("%w: sigma fractions must be positive", ErrInvalidOptions)
	}
	if o.Tol <= 0 || o.PowerIterCap <= 0 {
		return fmt.Errorf("%w: tolerance and iteration cap must be positive", ErrInvalidOptions)
	}
	if o.NumNormIters < 0 || o.MaxGraphNodes <= 0 {
		return fmt.Errorf("%w: bad iteration or node bound", ErrInvalidOptions)
	}
	weights := []float64{
		o.ColorWeight, o.DKLWeight, o.IntensityWeight, o.OrientationWeight,
		o.ContrastWeight, o.FlickerWeight, o.MotionWeight, o.BlurWeight,
		o.SegmentationWeight, o.FaceWeight, o.PerspectiveWeight,
	}
	if slices.Min(weights) < 0 {
		return fmt.Errorf("%w: negative channel weight", ErrInvalidOptions)
	}
	return nil
}

// levelsFor drops configured levels the working raster cannot support.
func (o *Options) levelsFor(w, h int) ([]int, error) {
	kept := make([]int, 0, len(o.Levels))
	for _, l := range o.Levels {
		cols, rows := levelDims(w, h, l)
		if l > o.MaxComputeLevel || cols < o.MinLevelDim || rows < o.MinLevelDim {
			o.logger().Printf("gbvs warning: dropping level %d (%dx%d) for %dx%d raster", l, cols, rows, w, h)
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: none of %v fit a %dx%d raster", ErrNoLevels, o.Levels, w, h)
	}
	return kept, nil
}

func (o *Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

func (o *Options) logger() *log.Logger {
	if o.Logger == nil {
		return discard
	}
	return o.Logger
}

func (o *Options) progress(format string, args ...any) {
	if o.Verbose {
		o.logger().Printf(format, args...)
	}
}

var discard = log.New(io.Discard, "", 0)
