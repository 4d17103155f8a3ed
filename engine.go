package gbvs

import (
	"fmt"
	"image"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Input is one frame to analyze. Previous, when set, is the preceding frame
// of a sequence and enables the flicker and motion channels.
type Input struct {
	Image    image.Image
	Previous image.Image
}

// State is the pipeline stage an engine is in.
type State int32

const (
	StateIdle State = iota
	StateFeaturesExtracted
	StateGraphsBuilt
	StateActivated
	StateNormalized
	StateFused
	StatePriorApplied
	StateBlurred
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFeaturesExtracted:
		return "FeaturesExtracted"
	case StateGraphsBuilt:
		return "GraphsBuilt"
	case StateActivated:
		return "Activated"
	case StateNormalized:
		return "Normalized"
	case StateFused:
		return "Fused"
	case StatePriorApplied:
		return "PriorApplied"
	case StateBlurred:
		return "Blurred"
	case StateDone:
		return "Done"
	default:
		return "Idle"
	}
}

// Result is the outcome of Analyze.
type Result struct {
	// Master saliency map at output resolution.
	Saliency *Map
	// Fused map of every channel that produced features, before weighting.
	Channels map[byte]*Map
	// Set when Options.EquatorialPrior is.
	Equator Equator
	// Pyramid levels actually used.
	Levels []int
	// Working raster size.
	Working image.Point
}

// Engine computes GBVS saliency maps. Configuration persists across calls;
// per-image state does not. Calls are serialized.
type Engine struct {
	mu       sync.Mutex
	opt      Options
	gabors   []GaborFilter
	builtins map[byte]Channel
	custom   map[byte]Channel
	frames   *frameCache
	state    atomic.Int32
}

func NewEngine(opt Options) (*Engine, error) {
	e := &Engine{custom: make(map[byte]Channel)}
	if err := e.configure(opt); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) configure(opt Options) error {
	if err := opt.Validate(); err != nil {
		return err
	}
	opt.Levels = slices.Clone(opt.Levels)
	opt.GaborAngles = slices.Clone(opt.GaborAngles)
	e.opt = opt
	e.gabors = newGaborBank(opt.GaborAngles)
	e.builtins = builtinChannels(&e.opt, e.gabors)
	e.frames = newFrameCache()
	return nil
}

// Options returns a copy of the current configuration.
func (e *Engine) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	opt := e.opt
	opt.Levels = slices.Clone(opt.Levels)
	opt.GaborAngles = slices.Clone(opt.GaborAngles)
	return opt
}

// SetOptions replaces the configuration. On error the previous one is kept.
// Registered channels survive.
func (e *Engine) SetOptions(opt Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configure(opt)
}

// Register adds a channel, or replaces the one with the same letter,
// built-in ones included. It takes effect when its letter appears in
// Options.Channels.
func (e *Engine) Register(ch Channel) error {
	if ch.Letter == 0 || ch.Provide == nil {
		return fmt.Errorf("%w: channel needs a letter and a provider", ErrInvalidOptions)
	}
	if ch.Weight < 0 {
		return fmt.Errorf("%w: channel %c has negative weight", ErrInvalidOptions, ch.Letter)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom[ch.Letter] = ch
	return nil
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.opt.progress("gbvs: state -> %s", s)
}

// channels resolves Options.Channels against the registry.
func (e *Engine) channels() ([]Channel, error) {
	letters := lo.Uniq([]byte(e.opt.Channels))
	if len(letters) == 0 {
		return nil, fmt.Errorf("%w: no channels configured", ErrUnsupportedChannel)
	}
	out := make([]Channel, 0, len(letters))
	for _, l := range letters {
		ch, ok := e.custom[l]
		if !ok {
			ch, ok = e.builtins[l]
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, l)
		}
		out = append(out, ch)
	}
	return out, nil
}

// Compute returns the saliency map of img. With normalize the map is
// rescaled into [0, 1].
func (e *Engine) Compute(img image.Image, normalize bool) (*Map, error) {
	res, err := e.Analyze(Input{Image: img}, normalize)
	if err != nil {
		return nil, err
	}
	return res.Saliency, nil
}

// ComputeChannels returns the fused map of every channel of in, before
// channel weights, at output resolution.
func (e *Engine) ComputeChannels(in Input) (map[byte]*Map, error) {
	res, err := e.Analyze(in, false)
	if err != nil {
		return nil, err
	}
	return res.Channels, nil
}

// Analyze runs the full pipeline on in.
func (e *Engine) Analyze(in Input, normalize bool) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.setState(StateIdle)
	o := &e.opt

	if in.Image == nil || in.Image.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	chans, err := e.channels()
	if err != nil {
		return nil, err
	}

	src := newSource(in, o)
	levels, err := o.levelsFor(src.W(), src.H())
	if err != nil {
		return nil, err
	}
	frame, err := e.frames.get(src.W(), src.H(), levels, o)
	if err != nil {
		return nil, err
	}
	var boxes []image.Rectangle
	if o.Detector != nil {
		boxes = o.Detector.Detect(in.Image)
		for _, b := range boxes {
			src.Detections = append(src.Detections, src.scaleRect(b))
		}
	}

	features, err := e.extract(src, chans, frame.Levels)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		o.logger().Println("gbvs warning: no channel produced features")
	}
	e.setState(StateFeaturesExtracted)

	if err := e.activate(features, frame); err != nil {
		return nil, err
	}
	if err := e.normalize(features, frame); err != nil {
		return nil, err
	}

	ow, oh := workingSize(src.W(), src.H(), o.SalmapMaxSize)
	master, channels := fuse(features, ow, oh, o)
	if lo, hi := master.MinMax(); lo == 0 && hi == 0 {
		o.progress("gbvs: no feature carries activation, using a uniform map")
		master.Fill(1)
	}
	e.setState(StateFused)

	res := &Result{
		Channels: channels,
		Levels:   slices.Clone(frame.Levels),
		Working:  image.Pt(src.W(), src.H()),
	}
	if o.EquatorialPrior {
		res.Equator = estimateEquator(master, boxes, in.Image.Bounds(), o)
		applyGaussianEquatorialPrior(master, res.Equator.Latitude, o.EquatorSpread)
		o.progress("gbvs: equator at row %.2f (%.1f°, %s)", res.Equator.Row, res.Equator.Latitude, res.Equator.Source)
	}
	e.setState(StatePriorApplied)

	master = blurMap(master, o.BlurFrac*float64(ow+oh)/2, src.Cyclic)
	e.setState(StateBlurred)
	if normalize {
		master.Normalize()
	}
	res.Saliency = master
	e.setState(StateDone)
	return res, nil
}

// extract runs every channel on its own worker and builds the pyramids of
// the features they return.
func (e *Engine) extract(src *Source, chans []Channel, levels []int) ([]*Feature, error) {
	perChannel := make([][]*Feature, len(chans))
	var g errgroup.Group
	g.SetLimit(e.opt.workers())
	for i, ch := range chans {
		g.Go(func() error {
			raws, err := ch.Provide(src)
			if err != nil {
				return fmt.Errorf("channel %c (%s): %w", ch.Letter, ch.Name, err)
			}
			for _, rf := range raws {
				maps, err := rf.pyramid(src.W(), src.H(), levels, ch.Letter)
				if err != nil {
					return err
				}
				perChannel[i] = append(perChannel[i], &Feature{
					Maps:        maps,
					Description: rf.Description,
					Weight:      ch.Weight,
					Channel:     ch.Letter,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(perChannel), nil
}

// each calls fn for every feature index, concurrently when
// Options.ParallelGraphs is set.
func (e *Engine) each(n int, fn func(i int) error) error {
	if !e.opt.ParallelGraphs {
		for i := range n {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(e.opt.workers())
	for i := range n {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}

// activate replaces the raw maps of every feature with the stationary
// distribution of its dissimilarity graph. Each graph is built, solved and
// dropped in turn, so at most one N×N matrix per worker is alive; the
// GraphsBuilt and Activated states are therefore reached together.
func (e *Engine) activate(features []*Feature, frame *Frame) error {
	o := &e.opt
	err := e.each(len(features), func(i int) error {
		f := features[i]
		M := columnNormalize(activationGraph(f.nodeValues(), frame, o))
		res := principalEigenvector(M, o.Tol, o.PowerIterCap, o.SparseThreshold)
		if !res.Converged {
			o.logger().Printf("gbvs warning: activation of %q stopped after %d iterations", f.Description, res.Iters)
		}
		f.setNodeValues(res.V, MapActivation)
		return nil
	})
	if err != nil {
		return err
	}
	e.setState(StateGraphsBuilt)
	e.setState(StateActivated)
	return nil
}

func (e *Engine) normalize(features []*Feature, frame *Frame) error {
	o := &e.opt
	var top *Frame
	if o.NormalizationType == NormalizeGraph && o.NormalizeTopChannelMaps {
		coarsest := frame.Levels[len(frame.Levels)-1:]
		var err error
		if top, err = e.frames.get(frame.W, frame.H, coarsest, o); err != nil {
			return err
		}
	}
	err := e.each(len(features), func(i int) error {
		f := features[i]
		switch {
		case o.NormalizationType == NormalizeMax:
			for _, fm := range f.Maps {
				fm.Map = maxNormalize(fm.Map)
			}
			markNormalized(f.Maps)
		case top != nil:
			last := len(f.Maps) - 1
			for _, fm := range f.Maps[:last] {
				fm.Map = maxNormalize(fm.Map)
			}
			coarse := &Feature{Maps: f.Maps[last:], Description: f.Description}
			e.graphNormalize(coarse, top)
			// Back onto the scale maxNormalize gives the finer levels.
			f.Maps[last].Map = maxNormalize(f.Maps[last].Map)
			markNormalized(f.Maps)
		default:
			e.graphNormalize(f, frame)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.setState(StateNormalized)
	return nil
}

// graphNormalize runs Options.NumNormIters activation-weighted passes.
func (e *Engine) graphNormalize(f *Feature, frame *Frame) {
	o := &e.opt
	values := f.nodeValues()
	for range o.NumNormIters {
		W := normalizationGraph(values, frame, o)
		res := principalEigenvector(columnNormalize(W), o.Tol, o.PowerIterCap, o.SparseThreshold)
		if !res.Converged {
			o.logger().Printf("gbvs warning: normalization of %q stopped after %d iterations", f.Description, res.Iters)
		}
		values = res.V
	}
	f.setNodeValues(values, MapNormalized)
}

func markNormalized(maps []*FeatureMap) {
	for _, fm := range maps {
		fm.Type = MapNormalized
		fm.Done = true
	}
}

// ComputeActivation runs the activation pass, and with normalize the
// normalization pass, on a single raw map. The map is treated as a working
// raster: it is decimated into the configured levels.
func (e *Engine) ComputeActivation(raw *Map, normalize bool) ([]*FeatureMap, error) {
	if raw == nil || raw.W == 0 || raw.H == 0 {
		return nil, ErrEmptyImage
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	o := &e.opt
	levels, err := o.levelsFor(raw.W, raw.H)
	if err != nil {
		return nil, err
	}
	frame, err := e.frames.get(raw.W, raw.H, levels, o)
	if err != nil {
		return nil, err
	}
	maps, err := RawFeature{Description: "activation", Map: raw}.pyramid(raw.W, raw.H, frame.Levels, 0)
	if err != nil {
		return nil, err
	}
	features := []*Feature{{Maps: maps, Description: "activation", Weight: 1}}
	defer e.setState(StateIdle)
	if err := e.activate(features, frame); err != nil {
		return nil, err
	}
	if normalize {
		if err := e.normalize(features, frame); err != nil {
			return nil, err
		}
	}
	return features[0].Maps, nil
}
