package state

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/petrijr/flowgate/pkg/api"
)

// Checksum returns a cheap, non-cryptographic digest of data, used only for
// change detection. Map keys are encoded in sorted order, so equal payloads
// always produce equal checksums.
func Checksum(data map[string]any) string {
	h := fnv.New64a()
	b, err := json.Marshal(data)
	if err != nil {
		// Unencodable values still get a stable, if coarse, digest.
		_, _ = fmt.Fprintf(h, "%v", data)
	} else {
		_, _ = h.Write(b)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Merge copies every key of payload into data, overwriting existing keys.
// Nested values are copied, so data never aliases payload.
func Merge(data, payload map[string]any) map[string]any {
	if data == nil {
		data = make(map[string]any, len(payload))
	}
	for k, v := range payload {
		data[k] = api.CloneValue(v)
	}
	return data
}
