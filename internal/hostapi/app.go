package hostapi

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptbridge/internal/script/proxy"
	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

// Default location of the application object
var (
	AppNamespace = []string{"com", "mycompany"}
	AppName      = "MyApp"
)

// App is the application object. It is an event target; the front-end
// dispatches "request" on it.
func App(namespace []string, name string, logger *zap.Logger) *proxy.Definition {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("app")

	return proxy.New(namespace, name).
		AddMethod("printSomething", func(call *proxy.Call) (value.Value, error) {
			// non-string arguments are ignored
			if s, err := call.Arg(0).AsString(); err == nil {
				log.Info("script printed", zap.String("text", s))
			}
			return value.Undefined, nil
		}).
		SetEventTarget(true)
}
