package preprocess

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/scriptbridge/internal/script/source"
)

// Message is one diagnostic from the transform
type Message struct {
	File     string
	Line     int
	Column   int
	Text     string
	LineText string
}

func (m Message) String() string {
	if m.Line == 0 {
		return fmt.Sprintf("%s: %s", m.File, m.Text)
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.File, m.Line, m.Column, m.Text)
}

// Error reports a syntax or transform failure
type Error struct {
	File     string
	Dialect  source.Dialect
	Messages []Message
}

func (e *Error) Error() string {
	lines := make([]string, len(e.Messages))
	for i, m := range e.Messages {
		lines[i] = m.String()
	}
	return fmt.Sprintf("preprocess %s (%s): %s", e.File, e.Dialect, strings.Join(lines, "; "))
}
