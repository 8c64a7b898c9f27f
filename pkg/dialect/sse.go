package dialect

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxEventSize bounds a single SSE line; upstream chunks are small but a
// final usage event can carry long content.
const maxEventSize = 1 << 20

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// SSEReader reads server-sent events from an upstream body.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader wraps r.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &SSEReader{scanner: scanner}
}

// Next returns the next event with a non-empty name or data. It returns
// io.EOF when the body ends between events.
func (s *SSEReader) Next() (Event, error) {
	var ev Event
	var data []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if ev.Name != "" || len(data) > 0 {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		}
		// id and retry are not used by any dialect
	}

	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	if ev.Name != "" || len(data) > 0 {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}
	return Event{}, io.EOF
}

// DataFrame renders v as a single "data:" event.
func DataFrame(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream event: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// NamedFrame renders v as an event with an explicit "event:" line.
func NamedFrame(name string, v any) ([]byte, error) {
	data, err := DataFrame(v)
	if err != nil {
		return nil, err
	}
	return append([]byte("event: "+name+"\n"), data...), nil
}
