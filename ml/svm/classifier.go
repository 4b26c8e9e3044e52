package svm

import "fmt"

// Classifier scales raw feature vectors and runs the one-vs-one decision.
// It holds no mutable state and can be shared between goroutines.
type Classifier struct {
	model *ModelParameters
}

type Prediction struct {
	Class          int       `json:"class"`
	Votes          []int     `json:"votes"`
	DecisionValues []float64 `json:"decision_values"`
}

func NewClassifier(model *ModelParameters) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model parameters", ErrInvalidModel)
	}
	return &Classifier{model: model}, nil
}

func (c *Classifier) Model() *ModelParameters {
	return c.model
}

func (c *Classifier) Predict(feature []float64) (int, error) {
	scaled, err := c.model.Normalize(feature)
	if err != nil {
		return 0, err
	}
	return Predict(c.model, scaled)
}

func (c *Classifier) PredictDetailed(feature []float64) (Prediction, error) {
	scaled, err := c.model.Normalize(feature)
	if err != nil {
		return Prediction{}, err
	}
	prediction := Prediction{
		Votes:          make([]int, c.model.NumClasses()),
		DecisionValues: make([]float64, c.model.NumPairs()),
	}
	prediction.Class, err = PredictValues(c.model, scaled, prediction.DecisionValues, prediction.Votes)
	if err != nil {
		return Prediction{}, err
	}
	return prediction, nil
}
