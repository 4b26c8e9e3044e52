package svm

import (
	"fmt"
)

// Parameters is the unchecked form of a trained one-vs-one SVM.
//
// DualCoefficients has NumClasses-1 rows with one column per support vector.
// Support vectors are grouped by class in class order and
// SupportVectorCounts gives the size of each group.
type Parameters struct {
	SupportVectors      [][]float64
	DualCoefficients    [][]float64
	Intercepts          []float64
	SupportVectorCounts []int
	Kernel              Kernel
	FeatureMin          []float64
	FeatureMax          []float64
}

// ModelParameters is a validated, immutable parameter set.
type ModelParameters struct {
	sv         [][]float64
	svCoef     [][]float64
	intercepts []float64
	nSV        []int
	start      []int
	kernel     Kernel
	featureMin []float64
	featureMax []float64
}

// NewModelParameters validates p and returns a private copy of it.
// All failures wrap ErrInvalidModel.
func NewModelParameters(p Parameters) (*ModelParameters, error) {
	nrClass := len(p.SupportVectorCounts)
	if nrClass < 2 {
		return nil, fmt.Errorf("%w: need at least 2 classes, got %d", ErrInvalidModel, nrClass)
	}
	if err := p.Kernel.validate(); err != nil {
		return nil, err
	}

	dim := len(p.FeatureMin)
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty normalization bounds", ErrInvalidModel)
	}
	if len(p.FeatureMax) != dim {
		return nil, fmt.Errorf("%w: feature_min has %d values, feature_max has %d",
			ErrInvalidModel, dim, len(p.FeatureMax))
	}
	for i := 0; i < dim; i++ {
		if !isFinite(p.FeatureMin[i]) || !isFinite(p.FeatureMax[i]) {
			return nil, fmt.Errorf("%w: non-finite normalization bound at feature %d", ErrInvalidModel, i)
		}
		if p.FeatureMax[i] <= p.FeatureMin[i] {
			return nil, fmt.Errorf("%w: degenerate normalization bounds at feature %d: min=%v max=%v",
				ErrInvalidModel, i, p.FeatureMin[i], p.FeatureMax[i])
		}
	}

	l := len(p.SupportVectors)
	total := 0
	for i, count := range p.SupportVectorCounts {
		if count < 0 {
			return nil, fmt.Errorf("%w: negative support vector count for class %d", ErrInvalidModel, i)
		}
		total += count
	}
	if total != l {
		return nil, fmt.Errorf("%w: support vector counts sum to %d, model has %d support vectors",
			ErrInvalidModel, total, l)
	}
	for i, v := range p.SupportVectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: support vector %d has %d features, expected %d",
				ErrInvalidModel, i, len(v), dim)
		}
		if !allFinite(v) {
			return nil, fmt.Errorf("%w: non-finite value in support vector %d", ErrInvalidModel, i)
		}
	}

	if len(p.DualCoefficients) != nrClass-1 {
		return nil, fmt.Errorf("%w: expected %d coefficient rows, got %d",
			ErrInvalidModel, nrClass-1, len(p.DualCoefficients))
	}
	for i, row := range p.DualCoefficients {
		if len(row) != l {
			return nil, fmt.Errorf("%w: coefficient row %d has %d values, expected %d",
				ErrInvalidModel, i, len(row), l)
		}
		if !allFinite(row) {
			return nil, fmt.Errorf("%w: non-finite value in coefficient row %d", ErrInvalidModel, i)
		}
	}

	pairs := nrClass * (nrClass - 1) / 2
	if len(p.Intercepts) != pairs {
		return nil, fmt.Errorf("%w: expected %d intercepts, got %d", ErrInvalidModel, pairs, len(p.Intercepts))
	}
	if !allFinite(p.Intercepts) {
		return nil, fmt.Errorf("%w: non-finite intercept", ErrInvalidModel)
	}

	start := make([]int, nrClass)
	for i := 1; i < nrClass; i++ {
		start[i] = start[i-1] + p.SupportVectorCounts[i-1]
	}

	return &ModelParameters{
		sv:         copyMatrix(p.SupportVectors),
		svCoef:     copyMatrix(p.DualCoefficients),
		intercepts: copyVector(p.Intercepts),
		nSV:        append([]int(nil), p.SupportVectorCounts...),
		start:      start,
		kernel:     p.Kernel,
		featureMin: copyVector(p.FeatureMin),
		featureMax: copyVector(p.FeatureMax),
	}, nil
}

func (m *ModelParameters) NumClasses() int {
	return len(m.nSV)
}

func (m *ModelParameters) NumPairs() int {
	n := len(m.nSV)
	return n * (n - 1) / 2
}

func (m *ModelParameters) FeatureDim() int {
	return len(m.featureMin)
}

func (m *ModelParameters) NumSupportVectors() int {
	return len(m.sv)
}

func (m *ModelParameters) Kernel() Kernel {
	return m.kernel
}

func (m *ModelParameters) SupportVectorCounts() []int {
	return append([]int(nil), m.nSV...)
}

func copyMatrix(src [][]float64) [][]float64 {
	dst := make([][]float64, len(src))
	for i, row := range src {
		dst[i] = copyVector(row)
	}
	return dst
}

func copyVector(src []float64) []float64 {
	return append([]float64(nil), src...)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
