// Package profiling starts continuous profiling when a server is configured.
package profiling

import (
	"fmt"

	"github.com/grafana/pyroscope-go"
	"github.com/rs/zerolog"
)

// Start begins pushing profiles to serverAddress. An empty address disables
// profiling and returns a no-op stop function.
func Start(appName, serverAddress string, tags map[string]string, logger zerolog.Logger) (func() error, error) {
	if serverAddress == "" {
		return func() error { return nil }, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   serverAddress,
		Tags:            tags,
		Logger:          zerologAdapter{l: logger},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope: %w", err)
	}
	return profiler.Stop, nil
}

// zerologAdapter satisfies pyroscope.Logger.
type zerologAdapter struct {
	l zerolog.Logger
}

func (a zerologAdapter) Infof(format string, args ...interface{}) {
	a.l.Info().Msgf(format, args...)
}

func (a zerologAdapter) Debugf(format string, args ...interface{}) {
	a.l.Debug().Msgf(format, args...)
}

func (a zerologAdapter) Errorf(format string, args ...interface{}) {
	a.l.Error().Msgf(format, args...)
}
