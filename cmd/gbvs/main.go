// Command gbvs writes the graph-based visual saliency map of an image.
//
// Usage:
//
//	gbvs photo.jpg -o photo_saliency.png
//	gbvs pano.jpg --cyclic --equator --channels CIOR
//	gbvs frame2.png --prev frame1.png --channels CIOFM --dump-dir maps/
//
// Unset flags take the defaults OptionsFromSize derives from the input, so a
// 2:1 panorama is treated as cyclic with the equatorial prior on.
package main

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/setanarut/gbvs"
	"github.com/setanarut/gbvs/utils"
)

type cliFlags struct {
	out         string
	prev        string
	dumpDir     string
	channels    string
	levels      []int
	cyclic      bool
	equator     bool
	computeSize int
	outSize     int
	normType    int
	palette     string
	workers     int
	parallel    bool
	raw         bool
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:   "gbvs <image>",
		Short: "Compute a graph-based visual saliency map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), &f, args[0])
		},
		SilenceUsage: true,
	}
	addFlags(cmd.Flags(), &f)
	return cmd
}

func addFlags(fs *pflag.FlagSet, f *cliFlags) {
	def := gbvs.DefaultOptions()
	fs.StringVarP(&f.out, "out", "o", "", "output PNG (default <image>_saliency.png)")
	fs.StringVar(&f.prev, "prev", "", "previous frame, enables flicker (F) and motion (M)")
	fs.StringVar(&f.dumpDir, "dump-dir", "", "also write each channel map to this directory")
	fs.StringVarP(&f.channels, "channels", "c", def.Channels, "channel letters: C D I O R F M B S")
	fs.IntSliceVar(&f.levels, "levels", def.Levels, "pyramid levels, strictly increasing")
	fs.BoolVar(&f.cyclic, "cyclic", false, "wrap distances horizontally (360° equirectangular input)")
	fs.BoolVar(&f.equator, "equator", false, "apply the equatorial prior")
	fs.IntVar(&f.computeSize, "size", def.ComputeMaxSize, "larger side of the working raster")
	fs.IntVar(&f.outSize, "out-size", def.SalmapMaxSize, "larger side of the saliency map")
	fs.IntVar(&f.normType, "normalization", def.NormalizationType, "0 graph, 1 max-based")
	fs.StringVar(&f.palette, "palette", def.SegmentMethod.String(), "segmentation palette: dominantcolor or kmeans")
	fs.IntVar(&f.workers, "workers", 0, "channel workers (0 = GOMAXPROCS)")
	fs.BoolVar(&f.parallel, "parallel-graphs", false, "solve feature graphs concurrently")
	fs.BoolVar(&f.raw, "raw", false, "skip the final [0, 1] normalization")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log pipeline progress")
}

// options starts from the size-derived defaults and applies the flags the
// user set.
func options(fs *pflag.FlagSet, f *cliFlags, size image.Point) (gbvs.Options, error) {
	opt := gbvs.OptionsFromSize(size)
	if fs.Changed("channels") {
		opt.Channels = strings.ToUpper(f.channels)
	}
	if fs.Changed("levels") {
		opt.Levels = f.levels
	}
	if fs.Changed("cyclic") {
		opt.CyclicType = gbvs.DistancePlanar
		if f.cyclic {
			opt.CyclicType = gbvs.DistanceCyclic
		}
	}
	if fs.Changed("equator") {
		opt.EquatorialPrior = f.equator
	}
	if fs.Changed("size") {
		opt.ComputeMaxSize = f.computeSize
	}
	if fs.Changed("out-size") {
		opt.SalmapMaxSize = f.outSize
	}
	opt.NormalizationType = f.normType
	method, ok := utils.ParsePaletteMethod(f.palette)
	if !ok {
		return opt, fmt.Errorf("unknown palette method %q", f.palette)
	}
	opt.SegmentMethod = method
	opt.Workers = f.workers
	opt.ParallelGraphs = f.parallel
	opt.Verbose = f.verbose
	opt.Logger = log.New(os.Stderr, "", log.LstdFlags)
	return opt, nil
}

func run(fs *pflag.FlagSet, f *cliFlags, path string) error {
	img, err := utils.ReadImage(path)
	if err != nil {
		return err
	}
	in := gbvs.Input{Image: img}
	if f.prev != "" {
		if in.Previous, err = utils.ReadImage(f.prev); err != nil {
			return err
		}
	}
	opt, err := options(fs, f, img.Bounds().Size())
	if err != nil {
		return err
	}
	engine, err := gbvs.NewEngine(opt)
	if err != nil {
		return err
	}
	res, err := engine.Analyze(in, !f.raw)
	if err != nil {
		return err
	}

	out := f.out
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + "_saliency.png"
	}
	sal := res.Saliency
	if err := utils.SaveImage(utils.GrayFromValues(sal.W, sal.H, sal.Pix), out); err != nil {
		return err
	}
	fmt.Printf("%s: %dx%d saliency from %dx%d working raster, levels %v\n",
		out, sal.W, sal.H, res.Working.X, res.Working.Y, res.Levels)
	if opt.EquatorialPrior {
		fmt.Printf("equator: row %.2f, %.1f° (%s)\n", res.Equator.Row, res.Equator.Latitude, res.Equator.Source)
	}

	if f.dumpDir == "" {
		return nil
	}
	if err := os.MkdirAll(f.dumpDir, 0o755); err != nil {
		return err
	}
	grays := make(map[string]*image.Gray, len(res.Channels))
	for ch, m := range res.Channels {
		m = m.Clone()
		m.Normalize()
		grays[string(ch)] = utils.GrayFromValues(m.W, m.H, m.Pix)
	}
	prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_"
	return utils.SaveGrayImages(grays, f.dumpDir, prefix)
}
