package hostapi

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/scriptbridge/internal/script/proxy"
	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

// MaxHTMLSize bounds documents passed to host.HTML
const MaxHTMLSize = 10 * 1024 * 1024

func stringArg(call *proxy.Call, i int) (string, error) {
	s, err := call.Arg(i).AsString()
	return s, annotate(call, i, err)
}

func numbersArg(call *proxy.Call, i int) ([]float64, error) {
	n, err := call.Arg(i).AsNumbers()
	return n, annotate(call, i, err)
}

func annotate(call *proxy.Call, i int, err error) error {
	if err == nil {
		return nil
	}
	var te *value.TypeError
	if errors.As(err, &te) {
		te.Detail = fmt.Sprintf("%s.%s argument %d", call.Path, call.Method, i)
	}
	return err
}

func htmlArg(call *proxy.Call, i int) (string, error) {
	s, err := stringArg(call, i)
	if err != nil {
		return "", err
	}
	if len(s) > MaxHTMLSize {
		return "", fmt.Errorf("%s.%s: document is %d bytes, limit is %d", call.Path, call.Method, len(s), MaxHTMLSize)
	}
	return s, nil
}
