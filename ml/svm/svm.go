package svm

import (
	"fmt"
)

// Predict returns the one-vs-one class index for an already normalized x.
func Predict(model *ModelParameters, x []float64) (int, error) {
	decValues := make([]float64, model.NumPairs())
	votes := make([]int, model.NumClasses())
	return PredictValues(model, x, decValues, votes)
}

// PredictValues is Predict that also fills decValues with the pairwise
// decision values (pair order (0,1), (0,2), ..., (1,2), ...) and votes with
// the per-class vote counts. Ties go to the lowest class index.
func PredictValues(model *ModelParameters, x []float64, decValues []float64, votes []int) (int, error) {
	if len(x) != model.FeatureDim() {
		return 0, fmt.Errorf("%w: got %d features, model expects %d",
			ErrDimensionMismatch, len(x), model.FeatureDim())
	}
	nrClass := model.NumClasses()
	if len(decValues) != model.NumPairs() || len(votes) != nrClass {
		return 0, fmt.Errorf("%w: output buffers sized %d/%d, need %d/%d",
			ErrDimensionMismatch, len(decValues), len(votes), model.NumPairs(), nrClass)
	}

	l := model.NumSupportVectors()
	kvalue := make([]float64, l)
	for i := 0; i < l; i++ {
		kvalue[i] = model.kernel.Evaluate(x, model.sv[i])
		if !isFinite(kvalue[i]) {
			return 0, fmt.Errorf("%w: %s kernel value for support vector %d is %v",
				ErrPredictionFailed, model.kernel.Kind, i, kvalue[i])
		}
	}

	for i := range votes {
		votes[i] = 0
	}
	p := 0

	for i := 0; i < nrClass; i++ {
		for j := i + 1; j < nrClass; j++ {
			sum := 0.0
			si, sj := model.start[i], model.start[j]
			ci, cj := model.nSV[i], model.nSV[j]
			coef1, coef2 := model.svCoef[j-1], model.svCoef[i]

			for k := 0; k < ci; k++ {
				sum += coef1[si+k] * kvalue[si+k]
			}

			for k := 0; k < cj; k++ {
				sum += coef2[sj+k] * kvalue[sj+k]
			}

			sum += model.intercepts[p]
			if !isFinite(sum) {
				return 0, fmt.Errorf("%w: decision value for classes %d and %d is %v",
					ErrPredictionFailed, i, j, sum)
			}
			decValues[p] = sum
			if decValues[p] > 0.0 {
				votes[i]++
			} else {
				votes[j]++
			}

			p++
		}
	}

	best := 0
	for i := 1; i < nrClass; i++ {
		if votes[i] > votes[best] {
			best = i
		}
	}

	return best, nil
}
