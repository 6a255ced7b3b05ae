package fit_test

import (
	"context"
	"fmt"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/fit"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

// ////////////////////////////////////////////////////////////////////////////
// ExampleEngine_Fit
// ////////////////////////////////////////////////////////////////////////////
//
// Scenario:
//
//	Five points lie on y = 1 + 2x. A Linear function starting at zero is
//	fitted with Levenberg-Marquardt and its parameters are read back.
//
// ExampleEngine_Fit runs one fit and prints the status and parameters.
func ExampleEngine_Fit() {
	g := vars.New()
	reg := model.NewRegistry(model.NewLibrary(), g)
	line, err := reg.CreateFromValues("line", "Linear", []float64{0, 0}, true)
	if err != nil {
		fmt.Println("error:", err)

		return
	}
	m := reg.NewModel()
	if err = m.Add(line.Name()); err != nil {
		fmt.Println("error:", err)

		return
	}
	d, err := dataset.FromArrays([]float64{0, 1, 2, 3, 4}, []float64{1, 3, 5, 7, 9}, nil, "", dataset.SigmaOne)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	res, err := fit.New(g, config.Default()).Fit(context.Background(), []fit.Target{{Data: d, Model: m}}, 0)
	if err != nil {
		fmt.Println("error:", err)

		return
	}
	v, _ := line.ParamValues()
	fmt.Println(res.Status)
	fmt.Printf("a0=%.4f a1=%.4f\n", v[0], v[1])
	// Output:
	// converged
	// a0=1.0000 a1=2.0000
}
