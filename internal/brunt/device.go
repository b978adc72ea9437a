package brunt

import (
	"bytes"
	"encoding/json"
)

// Device is one blind engine registered under the account.
type Device struct {
	Serial string
	Name   string
	URI    string
}

type deviceJSON struct {
	Serial *string `json:"SERIAL"`
	Name   *string `json:"NAME"`
	URI    *string `json:"thingUri"`
}

func parseDevices(body []byte) ([]Device, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []Device{}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}

	devices := make([]Device, 0, len(elements))
	for i, raw := range elements {
		var d deviceJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, &ParseError{Index: i, Err: err}
		}

		switch {
		case d.Serial == nil:
			return nil, &ParseError{Index: i, Field: "SERIAL"}
		case d.Name == nil:
			return nil, &ParseError{Index: i, Field: "NAME"}
		case d.URI == nil:
			return nil, &ParseError{Index: i, Field: "thingUri"}
		}

		devices = append(devices, Device{Serial: *d.Serial, Name: *d.Name, URI: *d.URI})
	}

	return devices, nil
}
