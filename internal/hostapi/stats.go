package hostapi

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/scriptbridge/internal/script/proxy"
	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

// Stats exposes descriptive statistics as host.Stats
func Stats() *proxy.Definition {
	return proxy.New([]string{"host"}, "Stats").
		AddMethod("mean", func(call *proxy.Call) (value.Value, error) {
			xs, err := sample(call, 1)
			if err != nil {
				return value.Undefined, err
			}
			return value.Number(stat.Mean(xs, nil)), nil
		}).
		AddMethod("stddev", func(call *proxy.Call) (value.Value, error) {
			xs, err := sample(call, 2)
			if err != nil {
				return value.Undefined, err
			}
			return value.Number(math.Sqrt(stat.Variance(xs, nil))), nil
		})
}

func sample(call *proxy.Call, atLeast int) ([]float64, error) {
	xs, err := numbersArg(call, 0)
	if err != nil {
		return nil, err
	}
	if len(xs) < atLeast {
		return nil, fmt.Errorf("%s.%s needs at least %d numbers, got %d", call.Path, call.Method, atLeast, len(xs))
	}
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%s.%s: element %d is not finite", call.Path, call.Method, i)
		}
	}
	return xs, nil
}
