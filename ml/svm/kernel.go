package svm

import (
	"fmt"
	"gonum.org/v1/gonum/floats"
	"math"
	"strings"
)

type KernelKind int

const (
	KernelTypeLinear KernelKind = iota
	KernelTypePoly
	KernelTypeRbf
	KernelTypeSigmoid
)

var kernelNames = map[KernelKind]string{
	KernelTypeLinear:  "linear",
	KernelTypePoly:    "poly",
	KernelTypeRbf:     "rbf",
	KernelTypeSigmoid: "sigmoid",
}

func (k KernelKind) String() string {
	if name, ok := kernelNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kernel(%d)", int(k))
}

// ParseKernelKind maps the exporter's kernel tag to a KernelKind.
// "polynomial" is accepted as an alias of "poly".
func ParseKernelKind(tag string) (KernelKind, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "linear":
		return KernelTypeLinear, nil
	case "poly", "polynomial":
		return KernelTypePoly, nil
	case "rbf":
		return KernelTypeRbf, nil
	case "sigmoid":
		return KernelTypeSigmoid, nil
	}
	return 0, fmt.Errorf("%w: unknown kernel %q", ErrInvalidModel, tag)
}

// Kernel is a kernel function together with its hyperparameters.
// Degree is only used by KernelTypePoly.
type Kernel struct {
	Kind   KernelKind
	Gamma  float64
	Coef0  float64
	Degree int
}

// Evaluate returns K(x, y). Both vectors must have the same length.
func (k Kernel) Evaluate(x []float64, y []float64) float64 {
	switch k.Kind {
	case KernelTypeLinear:
		return floats.Dot(x, y)
	case KernelTypePoly:
		return powi(k.Gamma*floats.Dot(x, y)+k.Coef0, k.Degree)
	case KernelTypeRbf:
		return math.Exp(-k.Gamma * squaredDistance(x, y))
	case KernelTypeSigmoid:
		return math.Tanh(k.Gamma*floats.Dot(x, y) + k.Coef0)
	default:
		return math.NaN()
	}
}

func (k Kernel) validate() error {
	if _, ok := kernelNames[k.Kind]; !ok {
		return fmt.Errorf("%w: unsupported kernel %s", ErrInvalidModel, k.Kind)
	}
	if !isFinite(k.Gamma) || !isFinite(k.Coef0) {
		return fmt.Errorf("%w: kernel gamma and coef0 must be finite", ErrInvalidModel)
	}
	if k.Kind == KernelTypePoly && k.Degree < 0 {
		return fmt.Errorf("%w: negative polynomial degree %d", ErrInvalidModel, k.Degree)
	}
	return nil
}

func squaredDistance(x []float64, y []float64) float64 {
	sum := 0.0
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}

func powi(base float64, times int) float64 {
	tmp := base
	ret := 1.0

	for t := times; t > 0; t /= 2 {
		if t%2 == 1 {
			ret *= tmp
		}

		tmp *= tmp
	}

	return ret
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
