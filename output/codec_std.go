//go:build !jsonv2

package output

import "encoding/json"

// encodeLine renders one NDJSON line including the trailing newline.
func encodeLine(recordType string, payload any) ([]byte, error) {
	data, err := json.Marshal(envelope{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
