package piper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// protocolVersion is announced in every event header we send.
const protocolVersion = "1.5.2"

// maxDataLength bounds the JSON data block of an incoming event.
const maxDataLength = 1 << 20

// event is a Wyoming protocol event. On the wire it is a single-line JSON
// header, then data_length bytes of JSON data, then payload_length bytes of
// binary payload. Older servers inline the data in the header instead.
type event struct {
	Type string
	Data map[string]any
}

type header struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

func (e *event) intData(key string, def int) int {
	if v, ok := e.Data[key].(float64); ok {
		return int(v)
	}
	return def
}

// writeEvent sends one event with an optional payload.
func writeEvent(w io.Writer, evt event, payload []byte) error {
	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
	}

	hdr, err := json.Marshal(header{
		Type:          evt.Type,
		Version:       protocolVersion,
		DataLength:    len(data),
		PayloadLength: len(payload),
	})
	if err != nil {
		return fmt.Errorf("marshalling event header: %w", err)
	}

	buf := make([]byte, 0, len(hdr)+1+len(data)+len(payload))
	buf = append(buf, hdr...)
	buf = append(buf, '\n')
	buf = append(buf, data...)
	buf = append(buf, payload...)
	_, err = w.Write(buf)
	return err
}

// readEvent reads one event and its payload.
func readEvent(r *bufio.Reader) (*event, []byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var hdr header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: %w", line, err)
	}
	if hdr.DataLength < 0 || hdr.DataLength > maxDataLength || hdr.PayloadLength < 0 {
		return nil, nil, fmt.Errorf("invalid wyoming lengths: data=%d payload=%d", hdr.DataLength, hdr.PayloadLength)
	}

	evt := &event{Type: hdr.Type, Data: hdr.Data}
	if evt.Data == nil {
		evt.Data = map[string]any{}
	}

	if hdr.DataLength > 0 {
		raw := make([]byte, hdr.DataLength)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, nil, fmt.Errorf("reading data: %w", err)
		}
		var extra map[string]any
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling data: %w", err)
		}
		for k, v := range extra {
			evt.Data[k] = v
		}
	}

	var payload []byte
	if hdr.PayloadLength > 0 {
		payload = make([]byte, hdr.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}

	return evt, payload, nil
}
