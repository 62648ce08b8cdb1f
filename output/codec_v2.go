//go:build jsonv2

package output

import (
	"encoding/json/jsontext"
	jsonv2 "encoding/json/v2"
)

// encodeLine renders one NDJSON line including the trailing newline. Nil
// slices and maps keep their v1 encoding so readers see the same shape.
func encodeLine(recordType string, payload any) ([]byte, error) {
	data, err := jsonv2.Marshal(
		envelope{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload},
		jsonv2.FormatNilSliceAsNull(true),
		jsonv2.FormatNilMapAsNull(true),
		jsontext.AllowInvalidUTF8(true),
	)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
