package grpc

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

func init() {
	// Registering under "proto" replaces grpc-go's built-in protobuf codec
	// process-wide: grpc selects a call's codec by content-subtype, which
	// defaults to "proto" when unset, so every Send RPC in this package
	// picks up gob encoding without per-call options.
	encoding.RegisterCodec(gobCodec{})
}

// gobCodec replaces grpc's default "proto" codec with encoding/gob so the
// transport can move raftcore's plain Go structs over the wire without a
// protoc step. It registers under the name "proto" deliberately: that is
// the content-subtype grpc-go selects by default, so every call on both
// client and server uses it without extra per-call options.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return "proto" }
