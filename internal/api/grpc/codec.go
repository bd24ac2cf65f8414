// Package grpc serves the beaverlog Events service over gRPC.
//
// Messages are plain Go structs carried by a JSON codec registered under
// the "json" content subtype, so no generated stubs are needed. Clients must
// call with grpc.CallContentSubtype(CodecName); NewClient does this.
package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype of the JSON codec.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}
