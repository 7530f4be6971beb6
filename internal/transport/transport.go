// SPDX-License-Identifier: MIT

// Package transport publishes tone maps to consumers outside the process.
package transport

import (
	"fmt"

	"ctcss/internal/analysis"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Envelope is the JSON document published for each tone map.
type Envelope struct {
	Session string `json:"session"` // Identifies one run of the monitor.
	Source  string `json:"source,omitempty"`
	analysis.ToneMap
}

// toneMap extracts the tone map from a payload handed to Send.
func toneMap(data any) (analysis.ToneMap, error) {
	switch v := data.(type) {
	case analysis.ToneMap:
		return v, nil
	case *analysis.ToneMap:
		if v != nil {
			return *v, nil
		}
	}
	return analysis.ToneMap{}, fmt.Errorf("transport: unsupported payload %T", data)
}
