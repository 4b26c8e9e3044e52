package svm

import (
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestClassifierPredict(t *testing.T) {
	params := Parameters{
		SupportVectors:      [][]float64{{1, 0}, {-1, 0}},
		DualCoefficients:    [][]float64{{1.0, -1.0}},
		Intercepts:          []float64{0},
		SupportVectorCounts: []int{1, 1},
		Kernel:              Kernel{Kind: KernelTypeLinear},
		FeatureMin:          []float64{0, 0},
		FeatureMax:          []float64{2, 4},
	}
	model, err := NewModelParameters(params)
	require.NoError(t, err)
	clf, err := NewClassifier(model)
	require.NoError(t, err)

	// raw [4, 0] scales to [2, 0]
	class, err := clf.Predict([]float64{4, 0})
	require.NoError(t, err)
	require.Equal(t, 0, class)

	class, err = clf.Predict([]float64{-4, 0})
	require.NoError(t, err)
	require.Equal(t, 1, class)

	prediction, err := clf.PredictDetailed([]float64{4, 0})
	require.NoError(t, err)
	expected := Prediction{Class: 0, Votes: []int{1, 0}, DecisionValues: []float64{4}}
	if diff := cmp.Diff(expected, prediction); diff != "" {
		t.Errorf("unexpected prediction (-want +got):\n%s", diff)
	}
}

func TestClassifierErrors(t *testing.T) {
	_, err := NewClassifier(nil)
	require.ErrorIs(t, err, ErrInvalidModel)

	model, err := NewModelParameters(validParameters())
	require.NoError(t, err)
	clf, err := NewClassifier(model)
	require.NoError(t, err)
	require.Same(t, model, clf.Model())

	_, err = clf.Predict([]float64{0.1})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = clf.PredictDetailed([]float64{0.1, 0.2, 0.3})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}
