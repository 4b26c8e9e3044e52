package model

import (
	"github.com/tu-nv/action-classifier/ml/svm"
	"encoding/json"
	"errors"
	"fmt"
	jsonpatch "github.com/evanphx/json-patch"
)

// ErrLoad marks model data that could not be read or decoded. Structural
// problems in decoded data are reported with svm.ErrInvalidModel instead.
var ErrLoad = errors.New("failed to load model")

// Record is the exported parameter file of a trained SVC. Weights holds the
// number of support vectors per class.
type Record struct {
	Vectors      [][]float64 `json:"vectors"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
	DataMax      []float64   `json:"data_max"`
	DataMin      []float64   `json:"data_min"`
	Weights      []int       `json:"weights"`
	Gamma        float64     `json:"gamma"`
	Kernel       string      `json:"kernel"`
	NClasses     int         `json:"nClasses"`
	NRows        int         `json:"nRows"`
	Coef0        float64     `json:"coef0"`
	Degree       int         `json:"degree"`
}

// Parameters converts the record into validated model parameters.
func (r Record) Parameters() (*svm.ModelParameters, error) {
	kind, err := svm.ParseKernelKind(r.Kernel)
	if err != nil {
		return nil, err
	}
	if r.NClasses != 0 && r.NClasses != len(r.Weights) {
		return nil, fmt.Errorf("%w: nClasses is %d but weights list %d classes",
			svm.ErrInvalidModel, r.NClasses, len(r.Weights))
	}
	if r.NRows != 0 && r.NRows != len(r.Weights) {
		return nil, fmt.Errorf("%w: nRows is %d but weights list %d classes",
			svm.ErrInvalidModel, r.NRows, len(r.Weights))
	}
	return svm.NewModelParameters(svm.Parameters{
		SupportVectors:      r.Vectors,
		DualCoefficients:    r.Coefficients,
		Intercepts:          r.Intercepts,
		SupportVectorCounts: r.Weights,
		Kernel: svm.Kernel{
			Kind:   kind,
			Gamma:  r.Gamma,
			Coef0:  r.Coef0,
			Degree: r.Degree,
		},
		FeatureMin: r.DataMin,
		FeatureMax: r.DataMax,
	})
}

// DecodeRecord applies the JSON merge patches in order and unmarshals the result.
func DecodeRecord(data []byte, overrides ...[]byte) (Record, error) {
	var err error
	for i, patch := range overrides {
		if len(patch) == 0 {
			continue
		}
		data, err = jsonpatch.MergePatch(data, patch)
		if err != nil {
			return Record{}, fmt.Errorf("%w: applying override %d: %v", ErrLoad, i, err)
		}
	}
	var record Record
	if err = json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return record, nil
}

func Decode(data []byte, overrides ...[]byte) (*svm.ModelParameters, error) {
	record, err := DecodeRecord(data, overrides...)
	if err != nil {
		return nil, err
	}
	return record.Parameters()
}
