package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

// jsonCodec carries plain Go structs as JSON. It replaces the built-in
// "json" codec, which only accepts protobuf messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "invalid JSON message")
	}
	return nil
}

// WithJSON returns the option that installs the JSON codec on handlers and clients.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
