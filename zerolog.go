package agoda

import (
	"strings"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the pipeline Logger interface.
// The CLI uses it so scrape progress lands in the same structured stream as
// the rest of the process output.
type ZerologLogger struct {
	Log zerolog.Logger
}

func (l ZerologLogger) Printf(format string, a ...interface{}) {
	l.Log.Info().Msgf(strings.TrimRight(format, "\n"), a...)
}
