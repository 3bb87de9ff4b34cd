package ami

import (
	"fmt"
	"sort"
	"strings"
)

// Action is one AMI request: an ordered set of Key: Value fields. Order
// matters on the wire (Action must come first), so fields are kept as a slice
// rather than a map.
type Action struct {
	Name   string
	fields []field
}

type field struct {
	key, value string
}

// NewAction builds an action with the given Action header.
func NewAction(name string) *Action {
	return &Action{Name: name}
}

// Set appends a field. Repeated keys are allowed (AMI uses repeated Variable
// lines).
func (a *Action) Set(key, value string) *Action {
	a.fields = append(a.fields, field{key: key, value: value})
	return a
}

// Get returns the first value for key, or "".
func (a *Action) Get(key string) string {
	if strings.EqualFold(key, "Action") {
		return a.Name
	}
	for _, f := range a.fields {
		if strings.EqualFold(f.key, key) {
			return f.value
		}
	}
	return ""
}

// Encode serializes the action as CRLF-separated Key: Value lines followed by
// the blank-line terminator.
func (a *Action) Encode(actionID string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\n", a.Name)
	fmt.Fprintf(&b, "ActionID: %s\r\n", actionID)
	for _, f := range a.fields {
		fmt.Fprintf(&b, "%s: %s\r\n", f.key, f.value)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Message is one parsed AMI frame, either a Response or an Event.
type Message map[string]string

// ParseMessage parses a blank-line-terminated frame back into its key-value
// mapping. Lines without a colon are ignored (the AMI inserts free-form
// output lines in some replies). Both CRLF and bare LF terminators are
// accepted.
func ParseMessage(raw string) Message {
	msg := Message{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		msg[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return msg
}

// ActionID returns the correlation id carried by the frame, or "".
func (m Message) ActionID() string { return m["ActionID"] }

// IsEvent reports whether the frame is an unsolicited event rather than a
// command response.
func (m Message) IsEvent() bool {
	_, ok := m["Event"]
	return ok
}

// Success reports whether a response frame carries Response: Success.
func (m Message) Success() bool {
	return strings.EqualFold(m["Response"], "Success")
}

// Keys returns the frame's keys in sorted order, mainly for logging.
func (m Message) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
