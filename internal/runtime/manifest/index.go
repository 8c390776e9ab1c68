package manifest

// WriteTopicIndex maps a message type to the topic envelopes of that type are
// published to. It is built once and never modified, so concurrent lookups
// need no locking.
type WriteTopicIndex struct {
	topics map[string]string
}

// NewWriteTopicIndex indexes the write bindings of the entries of kind k.
// When two bindings declare the same message type the first one wins.
func NewWriteTopicIndex(m Manifest, k HandlerKind) WriteTopicIndex {
	idx := WriteTopicIndex{topics: make(map[string]string)}
	for _, c := range m.OfKind(k) {
		for _, b := range c.WriteTopics {
			if _, exists := idx.topics[b.MessageType]; !exists {
				idx.topics[b.MessageType] = b.TopicName
			}
		}
	}
	return idx
}

// TopicFor returns the topic for messageType and whether one is declared.
func (i WriteTopicIndex) TopicFor(messageType string) (string, bool) {
	topic, ok := i.topics[messageType]
	return topic, ok
}

// Len returns the number of indexed message types.
func (i WriteTopicIndex) Len() int {
	return len(i.topics)
}

// Topics returns a copy of the index.
func (i WriteTopicIndex) Topics() map[string]string {
	out := make(map[string]string, len(i.topics))
	for k, v := range i.topics {
		out[k] = v
	}
	return out
}
