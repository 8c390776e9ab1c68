package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
)

// Rule names used in ManifestValidationError.
const (
	RuleSingleKind       = "single handler kind per read topic"
	RuleQueueGroup       = "duplicate queue group on read topic"
	RuleSoloConsumer     = "more than one handler without a queue group on read topic"
	RuleReadWriteOverlap = "topics used for both publishing and subscribing"
)

// noGroup marks an absent queue group in error messages.
const noGroup = "<none>"

// Validate checks the enabled entries of m. Structural problems with
// individual entries are reported first, then the topic rules in order:
// one handler kind per read topic, queue-group uniqueness, and disjoint read
// and write topic sets. Topics are visited in lexical order so the reported
// violation is stable across runs.
func Validate(m Manifest) error {
	enabled := m.Enabled()
	if err := validateEntries(enabled); err != nil {
		return err
	}
	if err := validateReadBindings(enabled); err != nil {
		return err
	}
	return validateReadWriteOverlap(enabled)
}

func validateEntries(m Manifest) error {
	var errs []error
	for i, c := range m.Components {
		label := fmt.Sprintf("component %d (%s)", i, c.HandlerIdentifier)
		if strings.TrimSpace(c.HandlerIdentifier) == "" {
			errs = append(errs, fmt.Errorf("component %d: %w", i, errspkg.ErrHandlerNameRequired))
		}
		if !c.HandlerKind.Valid() {
			// Unknown kinds are rejected by the registrar, which names the kind.
			continue
		}
		if c.HandlerKind.Reads() && len(c.ReadTopics) == 0 {
			errs = append(errs, fmt.Errorf("%s: %s requires at least one read topic", label, c.HandlerKind))
		}
		if !c.HandlerKind.Reads() && len(c.ReadTopics) > 0 {
			errs = append(errs, fmt.Errorf("%s: %s cannot declare read topics", label, c.HandlerKind))
		}
		if !c.HandlerKind.Writes() && len(c.WriteTopics) > 0 {
			errs = append(errs, fmt.Errorf("%s: %s cannot declare write topics", label, c.HandlerKind))
		}
		for _, b := range append(append([]TopicBinding(nil), c.ReadTopics...), c.WriteTopics...) {
			if strings.TrimSpace(b.TopicName) == "" {
				errs = append(errs, fmt.Errorf("%s: %w", label, errspkg.ErrTopicRequired))
			}
		}
		for _, b := range c.WriteTopics {
			if strings.TrimSpace(b.MessageType) == "" {
				errs = append(errs, fmt.Errorf("%s: write topic %q needs a message type", label, b.TopicName))
			}
		}
	}
	return errors.Join(errs...)
}

type topicReaders struct {
	kinds  map[HandlerKind]struct{}
	groups map[string]int
	solo   int
}

func validateReadBindings(m Manifest) error {
	readers := make(map[string]*topicReaders)
	for _, c := range m.Components {
		for _, b := range c.ReadTopics {
			r, ok := readers[b.TopicName]
			if !ok {
				r = &topicReaders{kinds: make(map[HandlerKind]struct{}), groups: make(map[string]int)}
				readers[b.TopicName] = r
			}
			r.kinds[c.HandlerKind] = struct{}{}
			if b.HasQueueGroup() {
				r.groups[b.QueueGroup]++
			} else {
				r.solo++
			}
		}
	}

	for _, topic := range sortedKeys(readers) {
		r := readers[topic]
		if len(r.kinds) > 1 {
			kinds := make([]string, 0, len(r.kinds))
			for k := range r.kinds {
				kinds = append(kinds, string(k))
			}
			return errspkg.NewManifestValidationError(RuleSingleKind, []string{topic}, kinds)
		}
		var dupes []string
		for g, n := range r.groups {
			if n > 1 {
				dupes = append(dupes, g)
			}
		}
		if len(dupes) > 0 {
			return errspkg.NewManifestValidationError(RuleQueueGroup, []string{topic}, dupes)
		}
		if r.solo > 1 {
			conflicts := make([]string, r.solo)
			for i := range conflicts {
				conflicts[i] = noGroup
			}
			return errspkg.NewManifestValidationError(RuleSoloConsumer, []string{topic}, conflicts)
		}
	}
	return nil
}

func validateReadWriteOverlap(m Manifest) error {
	read := make(map[string]struct{})
	for _, c := range m.Components {
		for _, b := range c.ReadTopics {
			read[b.TopicName] = struct{}{}
		}
	}
	overlap := make(map[string]struct{})
	for _, c := range m.Components {
		for _, b := range c.WriteTopics {
			if _, ok := read[b.TopicName]; ok {
				overlap[b.TopicName] = struct{}{}
			}
		}
	}
	if len(overlap) == 0 {
		return nil
	}
	return errspkg.NewManifestValidationError(RuleReadWriteOverlap, sortedKeys(overlap), nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
