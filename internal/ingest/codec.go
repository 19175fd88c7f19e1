package ingest

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec serializes the hand-rolled stream messages. The default grpc
// codec only accepts proto.Message values, so servers hosting this stream
// must be built with grpc.ForceServerCodec(Codec()) and clients must select
// the same codec by name.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

// Codec returns the wire codec for the donor location stream.
func Codec() encoding.Codec { return jsonCodec{} }
