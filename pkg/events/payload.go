package events

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ContentType of every payload on the exchange.
const ContentType = "application/x-protobuf"

// EncodePayload marshals fields as a protobuf Struct. Values must be representable
// by structpb (strings, numbers, bools, nil, nested maps and slices).
func EncodePayload(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build payload: %w", err)
	}
	body, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return body, nil
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(body []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &s, nil
}
