package handlers

import "github.com/drblury/protowire/internal/runtime/envelope"

// ContentType is set on every envelope a typed handler emits. It is
// informational; decoding is driven by the codec the handler was built with.
const ContentType envelope.HeaderKey = "contentType"

// Content types written by the codecs in this package.
const (
	ContentTypeProtobuf  = "application/x-protobuf"
	ContentTypeProtoJSON = "application/json; proto=true"
	ContentTypeJSON      = "application/json"
)
