package gbvs

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const logRatioEps = 1e-12

func dissimilarity(kind Dissimilarity, a, b float64) float64 {
	switch kind {
	case DissimLogRatio:
		return math.Abs(math.Log((math.Abs(a) + logRatioEps) / (math.Abs(b) + logRatioEps)))
	default:
		return math.Abs(a - b)
	}
}

// activationGraph builds the weight matrix of one feature over frame f from
// its node-ordered values. The result is symmetric and non-negative with
// no self-loops.
func activationGraph(values []float64, f *Frame, o *Options) *mat.Dense {
	k := f.Kernel(o.SigmaFracAct)
	kr := k.RawMatrix()

	// The affinity kernel scales dissimilarity by the feature's range so
	// σf stays unitless.
	scale := 1.0
	if o.Kernel == KernelAffinity {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range values {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		if span := hi - lo; span > 0 {
			scale = 1 / (o.SigmaFracAct * span)
		}
	}

	W := mat.NewDense(f.N, f.N, nil)
	Wraw := W.RawMatrix()
	for i := range f.N {
		row := i * Wraw.Stride
		krow := i * kr.Stride
		vi := values[i]
		for j := i + 1; j < f.N; j++ {
			dist := kr.Data[krow+j]
			if dist == 0 {
				continue
			}
			d := dissimilarity(o.Dissim, vi, values[j])
			var w float64
			switch o.Kernel {
			case KernelAffinity:
				w = math.Exp(-d*scale) * dist
			default:
				w = d * dist
			}
			Wraw.Data[row+j] = w
			Wraw.Data[j*Wraw.Stride+i] = w
		}
	}
	return W
}

// normalizationGraph weighs the edge into node i by its activation, so
// mass drifts toward nodes that are already active and concentrates there.
func normalizationGraph(act []float64, f *Frame, o *Options) *mat.Dense {
	k := f.Kernel(o.SigmaFracNorm)
	kr := k.RawMatrix()
	W := mat.NewDense(f.N, f.N, nil)
	Wraw := W.RawMatrix()
	for i := range f.N {
		a := act[i]
		if a == 0 {
			continue
		}
		row := i * Wraw.Stride
		krow := i * kr.Stride
		for j := range f.N {
			Wraw.Data[row+j] = a * kr.Data[krow+j]
		}
	}
	return W
}
