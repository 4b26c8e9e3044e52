package svm

import (
	"github.com/stretchr/testify/require"
	"math"
	"math/rand"
	"testing"
)

// unevenBlocksModel has 2, 1 and 3 support vectors per class.
func unevenBlocksModel(t *testing.T) *ModelParameters {
	model, err := NewModelParameters(Parameters{
		SupportVectors: [][]float64{
			{1, 0}, {0, 1},
			{1, 1},
			{2, 0}, {0, 2}, {1, -1},
		},
		DualCoefficients: [][]float64{
			{0.5, -1, 2, 1, 0.25, -0.5},
			{1, 2, -0.5, -1, 0.5, 3},
		},
		Intercepts:          []float64{0.1, -0.2, 0.3},
		SupportVectorCounts: []int{2, 1, 3},
		Kernel:              Kernel{Kind: KernelTypeLinear},
		FeatureMin:          []float64{0, 0},
		FeatureMax:          []float64{1, 1},
	})
	require.NoError(t, err)
	return model
}

func TestUnevenSupportVectorBlocks(t *testing.T) {
	model := unevenBlocksModel(t)
	tests := []struct {
		name      string
		x         []float64
		decValues []float64
		votes     []int
		class     int
	}{
		// (0,1): 0.5*1 - 1*2 + 2*3 + 0.1
		// (0,2): 1*1 + 2*2 + 1*2 + 0.25*4 - 0.5*-1 - 0.2
		// (1,2): -0.5*3 - 1*2 + 0.5*4 + 3*-1 + 0.3
		{"first class", []float64{1, 2}, []float64{4.6, 8.3, -4.2}, []int{2, 0, 1}, 0},
		{"last class", []float64{-1, 0}, []float64{-2.4, -2.7, -0.2}, []int{0, 1, 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decValues := make([]float64, 3)
			votes := make([]int, 3)
			class, err := PredictValues(model, tt.x, decValues, votes)
			require.NoError(t, err)
			require.InDeltaSlice(t, tt.decValues, decValues, 1e-12)
			require.Equal(t, tt.votes, votes)
			require.Equal(t, tt.class, class)
		})
	}
}

// referenceKernel evaluates the kernel formulas directly.
func referenceKernel(k Kernel, x []float64, y []float64) float64 {
	dot, dist := 0.0, 0.0
	for i := range x {
		dot += x[i] * y[i]
		dist += (x[i] - y[i]) * (x[i] - y[i])
	}
	switch k.Kind {
	case KernelTypePoly:
		return math.Pow(k.Gamma*dot+k.Coef0, float64(k.Degree))
	case KernelTypeRbf:
		return math.Exp(-k.Gamma * dist)
	case KernelTypeSigmoid:
		return math.Tanh(k.Gamma*dot + k.Coef0)
	}
	return dot
}

// referenceDecision walks every support vector and picks its coefficient
// by class membership: vectors of class a use row b-1, vectors of class b
// use row a.
func referenceDecision(p Parameters, x []float64) ([]float64, int) {
	owner := make([]int, 0, len(p.SupportVectors))
	for class, n := range p.SupportVectorCounts {
		for k := 0; k < n; k++ {
			owner = append(owner, class)
		}
	}
	nrClass := len(p.SupportVectorCounts)
	votes := make([]int, nrClass)
	var values []float64
	pair := 0
	for a := 0; a < nrClass; a++ {
		for b := a + 1; b < nrClass; b++ {
			sum := p.Intercepts[pair]
			for v, sv := range p.SupportVectors {
				switch owner[v] {
				case a:
					sum += p.DualCoefficients[b-1][v] * referenceKernel(p.Kernel, x, sv)
				case b:
					sum += p.DualCoefficients[a][v] * referenceKernel(p.Kernel, x, sv)
				}
			}
			values = append(values, sum)
			if sum > 0 {
				votes[a]++
			} else {
				votes[b]++
			}
			pair++
		}
	}
	best := 0
	for c := range votes {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return values, best
}

func randomParameters(rnd *rand.Rand, counts []int, dim int, kernel Kernel) Parameters {
	total := 0
	for _, n := range counts {
		total += n
	}
	nrClass := len(counts)
	p := Parameters{
		SupportVectorCounts: counts,
		Kernel:              kernel,
		FeatureMin:          make([]float64, dim),
		FeatureMax:          make([]float64, dim),
		Intercepts:          make([]float64, nrClass*(nrClass-1)/2),
		DualCoefficients:    make([][]float64, nrClass-1),
	}
	for i := 0; i < dim; i++ {
		p.FeatureMax[i] = 1
	}
	for i := 0; i < total; i++ {
		sv := make([]float64, dim)
		for j := range sv {
			sv[j] = rnd.Float64()*2 - 1
		}
		p.SupportVectors = append(p.SupportVectors, sv)
	}
	for i := range p.DualCoefficients {
		row := make([]float64, total)
		for j := range row {
			row[j] = rnd.Float64()*4 - 2
		}
		p.DualCoefficients[i] = row
	}
	for i := range p.Intercepts {
		p.Intercepts[i] = rnd.Float64() - 0.5
	}
	return p
}

func TestDecisionMatchesReference(t *testing.T) {
	kernels := []Kernel{
		{Kind: KernelTypeLinear},
		{Kind: KernelTypePoly, Gamma: 0.5, Coef0: 1, Degree: 3},
		{Kind: KernelTypeRbf, Gamma: 0.7},
		{Kind: KernelTypeSigmoid, Gamma: 0.3, Coef0: -0.2},
	}
	for _, kernel := range kernels {
		t.Run(kernel.Kind.String(), func(t *testing.T) {
			rnd := rand.New(rand.NewSource(42))
			params := randomParameters(rnd, []int{2, 1, 3, 2}, 4, kernel)
			model, err := NewModelParameters(params)
			require.NoError(t, err)

			decValues := make([]float64, model.NumPairs())
			votes := make([]int, model.NumClasses())
			for n := 0; n < 200; n++ {
				x := make([]float64, 4)
				for i := range x {
					x[i] = rnd.Float64()*2 - 1
				}
				class, err := PredictValues(model, x, decValues, votes)
				require.NoError(t, err)
				wantValues, wantClass := referenceDecision(params, x)
				require.InDeltaSlice(t, wantValues, decValues, 1e-9)
				require.Equal(t, wantClass, class)
			}
		})
	}
}
