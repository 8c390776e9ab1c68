// Package schema checks at startup that every topic's protobuf contract
// matches the copy held by a remote schema registry.
package schema

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Record is the registry's view of one topic contract.
type Record struct {
	Topic            string `json:"topic"`
	ProtoMessageType string `json:"protoMessageType"`
	DescriptorSHA256 string `json:"descriptorSha256"`
	DescriptorBase64 string `json:"descriptorBase64"`
}

// NewRecord fingerprints md for topic. The descriptor is serialized
// deterministically so the same message definition always yields the same
// fingerprint.
func NewRecord(topic string, md protoreflect.MessageDescriptor) (Record, error) {
	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(protodesc.ToDescriptorProto(md))
	if err != nil {
		return Record{}, fmt.Errorf("marshal descriptor of %s: %w", md.FullName(), err)
	}
	sum := sha256.Sum256(raw)
	return Record{
		Topic:            topic,
		ProtoMessageType: string(md.FullName()),
		DescriptorSHA256: hex.EncodeToString(sum[:]),
		DescriptorBase64: base64.StdEncoding.EncodeToString(raw),
	}, nil
}
