package judgeapi

import (
	"bytes"
	"encoding/json"

	"connectrpc.com/connect"
)

// codecName replaces connect's protojson codec, so application/json requests
// decode into the plain structs in types.go.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// WithJSON registers the JSON codec on a handler or client.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
