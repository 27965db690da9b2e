package risktier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// projection is a fitted PCA projection onto the leading components.
// Rows index input features, columns index components.
type projection struct {
	Components [][]float64 `msgpack:"components"`
}

// fitPCA computes the principal component projection of standardized
// rows onto nComponents dimensions.
func fitPCA(rows [][]float64, nComponents int) (*projection, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("PCA needs at least one row")
	}
	dim := len(rows[0])
	if nComponents > dim {
		nComponents = dim
	}

	data := mat.NewDense(len(rows), dim, nil)
	for i, row := range rows {
		data.SetRow(i, row)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("principal component decomposition failed")
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)

	comps := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		comps[i] = make([]float64, nComponents)
		for j := 0; j < nComponents; j++ {
			comps[i][j] = vectors.At(i, j)
		}
	}
	return &projection{Components: comps}, nil
}

// project maps standardized rows into the component space.
func (p *projection) project(rows [][]float64) [][]float64 {
	nComp := len(p.Components[0])
	out := make([][]float64, len(rows))
	for i, row := range rows {
		proj := make([]float64, nComp)
		for j := 0; j < nComp; j++ {
			for f, v := range row {
				proj[j] += v * p.Components[f][j]
			}
		}
		out[i] = proj
	}
	return out
}
