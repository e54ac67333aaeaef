package agoda

import (
	"bytes"
	"fmt"
)

// Logger receives progress and diagnostic output from every pipeline
// component.
type Logger interface {
	Printf(format string, a ...interface{})
}

// BufferedLogger collects output until flushed. Each traversal worker gets
// its own so that interleaved hotel logs stay readable.
type BufferedLogger struct {
	buffer bytes.Buffer
}

func (buflog *BufferedLogger) Printf(format string, a ...interface{}) {
	fmt.Fprintf(&buflog.buffer, format, a...)
	buflog.buffer.WriteByte('\n')
}

func (buflog *BufferedLogger) Flush(logger Logger) {
	s := buflog.buffer.String()
	if s != "" {
		logger.Printf("%v", s)
	}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Printf(format string, a ...interface{}) {}
