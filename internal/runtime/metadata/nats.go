package metadata

import "github.com/nats-io/nats.go"

// FromNATS flattens NATS headers, keeping the first value of each key.
func FromNATS(h nats.Header) Metadata {
	result := make(Metadata, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}

// ToNATS converts metadata into NATS headers. Keys are stored verbatim so
// mixed-case names such as correlationId survive the round trip.
func ToNATS(md Metadata) nats.Header {
	h := make(nats.Header, len(md))
	for k, v := range md {
		h[k] = []string{v}
	}
	return h
}
