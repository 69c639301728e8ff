package persistence

import (
	"encoding/json"
	"fmt"
)

// recordsVersion is bumped when the envelope layout changes.
const recordsVersion = 1

type envelope[T any] struct {
	Version int `json:"version"`
	Records []T `json:"records"`
}

// EncodeRecords serializes a collection as a versioned JSON envelope.
func EncodeRecords[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	return json.Marshal(envelope[T]{Version: recordsVersion, Records: records})
}

// DecodeRecords parses a payload written by EncodeRecords. An empty payload
// decodes to no records.
//
// Payload values decode with encoding/json semantics: numbers inside
// workflow data come back as float64.
func DecodeRecords[T any](payload []byte) ([]T, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var env envelope[T]
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if env.Version != recordsVersion {
		return nil, fmt.Errorf("decode records: unsupported version %d", env.Version)
	}
	return env.Records, nil
}
