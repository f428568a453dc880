package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// EventLogPrefix marks a log line as a NEP-297 structured event.
const EventLogPrefix = "EVENT_JSON:"

// EventLogData is the payload of a structured event log line.
type EventLogData struct {
	Standard string
	Version  string
	Event    string
	Data     json.RawMessage
}

// eventLogFields are the keys of a structured event. Keys match exactly and
// may appear at most once; other keys are ignored.
var eventLogFields = map[string]bool{"standard": true, "version": true, "event": true, "data": true}

// ParseEventLog reports whether line is a structured event and returns its
// payload. A line without the prefix, with invalid JSON after it, or without
// string standard, version and event fields is not an event; that is not an
// error.
func ParseEventLog(line string) (*EventLogData, bool) {
	body, ok := strings.CutPrefix(line, EventLogPrefix)
	if !ok {
		return nil, false
	}

	fields, ok := decodeEventLogFields(body)
	if !ok {
		return nil, false
	}

	var out EventLogData
	for key, dst := range map[string]*string{"standard": &out.Standard, "version": &out.Version, "event": &out.Event} {
		raw, present := fields[key]
		if !present || bytes.Equal(raw, []byte("null")) {
			return nil, false
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, false
		}
	}

	if data := fields["data"]; len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		out.Data = data
	}
	return &out, true
}

// decodeEventLogFields reads a single JSON object and returns the raw values
// of the event keys. It fails on anything but one object, and on a repeated
// event key.
func decodeEventLogFields(body string) (map[string]json.RawMessage, bool) {
	dec := json.NewDecoder(strings.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}

	fields := make(map[string]json.RawMessage, len(eventLogFields))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		if !eventLogFields[key] {
			continue
		}
		if _, dup := fields[key]; dup {
			return nil, false
		}
		fields[key] = value
	}

	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return fields, true
}
