package event

import "fmt"

// Topics maps event types to broker topics.
type Topics map[Type]string

func DefaultTopics() Topics {
	t := make(Topics, len(AllTypes))
	for _, typ := range AllTypes {
		t[typ] = string(typ)
	}
	return t
}

// WithOverrides returns a copy with the given type→topic overrides applied.
// Keys that are not event types are reported.
func (t Topics) WithOverrides(overrides map[string]string) (Topics, error) {
	out := make(Topics, len(t))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		typ := Type(k)
		if newPayload(typ) == nil {
			return nil, fmt.Errorf("topic override for unknown event type %q", k)
		}
		out[typ] = v
	}
	return out, nil
}

// Topic returns the topic of typ, falling back to the type name.
func (t Topics) Topic(typ Type) string {
	if topic, ok := t[typ]; ok && topic != "" {
		return topic
	}
	return string(typ)
}

// TopicsOf returns the topics of several types, in order.
func (t Topics) TopicsOf(types ...Type) []string {
	out := make([]string, 0, len(types))
	for _, typ := range types {
		out = append(out, t.Topic(typ))
	}
	return out
}
