// Package recordformat encodes capture records for storage and transport.
// Both codecs use the json struct tags so the field names match on every path.
package recordformat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/softbio/fallcapture/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// Format names a record encoding
type Format string

const (
	MsgPack Format = "msgpack"
	JSON    Format = "json"
)

// Encode serializes rec in format f
func Encode(f Format, rec *types.CaptureRecord) ([]byte, error) {
	switch f {
	case MsgPack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encoding record %s as msgpack: %w", rec.ID, err)
		}
		return buf.Bytes(), nil
	case JSON:
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encoding record %s as json: %w", rec.ID, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown record format %q", f)
}

// Decode parses a record previously written by Encode
func Decode(f Format, data []byte) (*types.CaptureRecord, error) {
	rec := &types.CaptureRecord{}
	switch f {
	case MsgPack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(rec); err != nil {
			return nil, fmt.Errorf("decoding msgpack record: %w", err)
		}
	case JSON:
		if err := json.Unmarshal(data, rec); err != nil {
			return nil, fmt.Errorf("decoding json record: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown record format %q", f)
	}
	return rec, nil
}
