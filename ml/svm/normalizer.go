package svm

import "fmt"

// Normalize min-max scales raw with the training-set bounds. Values outside
// the training range map outside [0, 1] and are kept as they are.
func (m *ModelParameters) Normalize(raw []float64) ([]float64, error) {
	if len(raw) != len(m.featureMin) {
		return nil, fmt.Errorf("%w: got %d features, model expects %d",
			ErrDimensionMismatch, len(raw), len(m.featureMin))
	}
	scaled := make([]float64, len(raw))
	for i := range raw {
		scaled[i] = (raw[i] - m.featureMin[i]) / (m.featureMax[i] - m.featureMin[i])
	}
	return scaled, nil
}
