// Package manifest describes the declarative handler manifest: which handlers
// exist, what kind each one is, and which topics it reads and writes.
package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// HandlerKind selects how a handler is driven.
type HandlerKind string

const (
	Consumer       HandlerKind = "CONSUMER"
	Function       HandlerKind = "FUNCTION"
	FunctionFanout HandlerKind = "FUNCTION_FANOUT"
	Supplier       HandlerKind = "SUPPLIER"
	SupplierFanout HandlerKind = "SUPPLIER_FANOUT"
)

// Kinds lists every handler kind in declaration order.
var Kinds = []HandlerKind{Consumer, Function, FunctionFanout, Supplier, SupplierFanout}

// ParseHandlerKind accepts the canonical upper-case names and their
// lower/kebab-case spellings ("function-fanout").
func ParseHandlerKind(s string) (HandlerKind, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, k := range Kinds {
		if string(k) == normalized {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown handler kind %q", s)
}

func (k HandlerKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k HandlerKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Reads reports whether handlers of this kind subscribe to read topics.
func (k HandlerKind) Reads() bool {
	return k == Consumer || k == Function || k == FunctionFanout
}

// Writes reports whether handlers of this kind may publish.
func (k HandlerKind) Writes() bool {
	return k != Consumer
}

// Pull reports whether handlers of this kind are polled by a worker loop.
func (k HandlerKind) Pull() bool {
	return k == Supplier || k == SupplierFanout
}

// UnmarshalText lets both JSON and TOML decoders accept relaxed spellings.
// Unknown names are kept verbatim so the registrar can reject them with the
// offending identifier in the error.
func (k *HandlerKind) UnmarshalText(text []byte) error {
	parsed, err := ParseHandlerKind(string(text))
	if err != nil {
		*k = HandlerKind(strings.TrimSpace(string(text)))
		return nil
	}
	*k = parsed
	return nil
}

func (k *HandlerKind) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("handler kind must be a string: %w", err)
	}
	return k.UnmarshalText([]byte(s))
}

func (k HandlerKind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

// TopicBinding is one read or write edge between a handler and a topic. An
// empty QueueGroup means the binding has no queue group.
type TopicBinding struct {
	TopicName   string `json:"topicName" toml:"topic_name"`
	MessageType string `json:"messageType" toml:"message_type"`
	QueueGroup  string `json:"queueGroup,omitempty" toml:"queue_group,omitempty"`
}

// HasQueueGroup reports whether the binding declares a queue group.
func (b TopicBinding) HasQueueGroup() bool {
	return strings.TrimSpace(b.QueueGroup) != ""
}

// ComponentEntry declares one handler.
type ComponentEntry struct {
	HandlerKind       HandlerKind    `json:"handlerType" toml:"handler_type"`
	ReadTopics        []TopicBinding `json:"readTopics,omitempty" toml:"read_topics,omitempty"`
	WriteTopics       []TopicBinding `json:"writeTopics,omitempty" toml:"write_topics,omitempty"`
	HandlerIdentifier string         `json:"handler" toml:"handler"`
	Disabled          bool           `json:"disabled,omitempty" toml:"disabled,omitempty"`
}

// Manifest is the ordered list of declared handlers.
type Manifest struct {
	Components []ComponentEntry `json:"components" toml:"components"`
}

// Enabled returns a manifest containing only the entries that are not
// disabled, preserving order. The receiver is not modified.
func (m Manifest) Enabled() Manifest {
	out := Manifest{Components: make([]ComponentEntry, 0, len(m.Components))}
	for _, c := range m.Components {
		if !c.Disabled {
			out.Components = append(out.Components, c)
		}
	}
	return out
}

// OfKind returns the entries declared with kind k.
func (m Manifest) OfKind(k HandlerKind) []ComponentEntry {
	var out []ComponentEntry
	for _, c := range m.Components {
		if c.HandlerKind == k {
			out = append(out, c)
		}
	}
	return out
}
