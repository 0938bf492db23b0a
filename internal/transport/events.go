package transport

import (
	"bufio"
	"io"
	"strings"
)

// event is one Server-Sent Events frame
type event struct {
	Name string
	Data string
}

// eventReader decodes a text/event-stream body
type eventReader struct {
	r *bufio.Reader
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{r: bufio.NewReader(r)}
}

// Next returns the next dispatched event. Comment lines and events without data are skipped.
func (er *eventReader) Next() (event, error) {
	var ev event
	var data []string
	for {
		line, err := er.r.ReadString('\n')
		if err != nil && line == "" {
			return event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				ev.Data = strings.Join(data, "\n")
				if ev.Name == "" {
					ev.Name = "message"
				}
				return ev, nil
			}
			ev = event{}
			if err != nil {
				return event{}, err
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

		if err != nil {
			// stream ended without the terminating blank line
			if len(data) > 0 {
				ev.Data = strings.Join(data, "\n")
				if ev.Name == "" {
					ev.Name = "message"
				}
				return ev, nil
			}
			return event{}, err
		}
	}
}
