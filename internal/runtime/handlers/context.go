package handlers

import (
	"strconv"
	"time"

	"github.com/drblury/protowire/internal/runtime/dispatch"
	"github.com/drblury/protowire/internal/runtime/envelope"
	"github.com/drblury/protowire/internal/runtime/logging"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
)

// MessageContext carries the headers of the envelope a typed handler is
// processing, and a logger already tagged with its correlation id.
type MessageContext struct {
	Headers metadatapkg.Metadata
	Logger  logging.ServiceLogger
}

func newMessageContext(in dispatch.Envelope, logger logging.ServiceLogger) MessageContext {
	return MessageContext{
		Headers: in.Metadata(),
		Logger:  logger.With(logging.LogFields{logging.CorrelationIDField: in.CorrelationID()}),
	}
}

// CloneHeaders returns a copy of the headers that the handler may modify.
func (c MessageContext) CloneHeaders() metadatapkg.Metadata {
	return c.Headers.Clone()
}

// Get returns a header value, or "" when absent.
func (c MessageContext) Get(key string) string {
	return c.Headers.Get(key)
}

func (c MessageContext) CorrelationID() string {
	return c.Headers.Get(string(envelope.CorrelationID))
}

func (c MessageContext) PayloadType() string {
	return c.Headers.Get(string(envelope.PayloadType))
}

// CreatedAt returns the creation time of the incoming envelope, or the zero
// time when the header is missing.
func (c MessageContext) CreatedAt() time.Time {
	ms, err := strconv.ParseInt(c.Headers.Get(string(envelope.CreationTimestamp)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
