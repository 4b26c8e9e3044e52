package svm

import "errors"

var (
	// ErrInvalidModel marks structural problems in a parameter set. It is
	// returned by NewModelParameters and never by Predict.
	ErrInvalidModel = errors.New("invalid svm model")

	// ErrDimensionMismatch is returned when a feature vector length differs
	// from the model feature dimension.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")

	// ErrPredictionFailed is returned when a kernel or decision value is not finite.
	ErrPredictionFailed = errors.New("svm prediction failed")
)
