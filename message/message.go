package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SkipDestinationsKey is the reserved metadata key holding the set of
// destination names that have already succeeded for this logical message
// across executions and replays. The executor is the only writer; it is
// strictly append-only.
const SkipDestinationsKey = "skipDestinations"

// ErrorInfo describes why a run failed, keyed by the handler name(s) that
// produced the failure.
type ErrorInfo struct {
	Message string            `json:"message"`
	Causes  map[string]string `json:"causes,omitempty"`
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Message is the durable, JSON-serializable record of one logical message:
// its content, metadata (including the skip set), freely-mutated
// properties, and, if the last run failed, error information. It is the
// shape written to a failure store and read back on replay.
type Message struct {
	ID         string                 `json:"id"`
	Content    Content                `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Properties map[string]interface{} `json:"properties"`
	ErrorInfo  *ErrorInfo             `json:"errorInfo,omitempty"`
}

var idSeq atomic.Uint32

// NewID returns a fresh, time-ordered unique identifier. It prefers a
// UUIDv7 (time-ordered per RFC 9562) and falls back to a timestamp+counter
// scheme if the uuid package's random source is unavailable, which keeps ID
// generation infallible — callers never need to handle an id-assignment
// error.
func NewID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	n := idSeq.Add(1)
	return fmt.Sprintf("%d-%08x", time.Now().UnixNano(), n)
}

// SkipDestinations extracts the skip set from a metadata map. Missing or
// malformed entries are treated as empty, never as an error: the skip set
// is advisory bookkeeping, not load-bearing for correctness beyond
// avoiding duplicate dispatch.
func SkipDestinations(metadata map[string]interface{}) []string {
	raw, ok := metadata[SkipDestinationsKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ContainsDestination reports whether name is already present in the skip
// set carried by metadata.
func ContainsDestination(metadata map[string]interface{}, name string) bool {
	for _, s := range SkipDestinations(metadata) {
		if s == name {
			return true
		}
	}
	return false
}

// CloneAny deep-clones a plain interface{} JSON tree (the shape metadata and
// properties maps are built from). Context snapshots, Context.Export and
// Message.Clone route metadata and properties through this (via
// CloneStringMap) so they never alias across a run or destination boundary.
// Store implementations do not use it: they copy Content with Content.Clone
// or by JSON encoding.
func CloneAny(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = CloneAny(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = CloneAny(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return t
	}
}

// CloneStringMap deep-clones a map[string]interface{}, returning a new
// non-nil map.
func CloneStringMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CloneAny(v)
	}
	return out
}

// Clone returns a deep copy of the Message, safe to hand to a store or to
// mutate independently of the original.
func (m *Message) Clone() *Message {
	cp := &Message{
		ID:         m.ID,
		Content:    m.Content.Clone(),
		Metadata:   CloneStringMap(m.Metadata),
		Properties: CloneStringMap(m.Properties),
	}
	if m.ErrorInfo != nil {
		causes := make(map[string]string, len(m.ErrorInfo.Causes))
		for k, v := range m.ErrorInfo.Causes {
			causes[k] = v
		}
		cp.ErrorInfo = &ErrorInfo{Message: m.ErrorInfo.Message, Causes: causes}
	}
	return cp
}

// ToContent encodes a Message as a Content tree, via JSON, so it can be
// written through a Store — which traffics only in Content — as the
// payload of a failure record. Pair with FromContent to read it back.
func (m *Message) ToContent() (Content, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Content{}, fmt.Errorf("message: encode: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Content{}, fmt.Errorf("message: decode: %w", err)
	}
	return FromAny(v)
}

// FromContent decodes a Message previously encoded with ToContent.
func FromContent(c Content) (*Message, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("message: re-encode: %w", err)
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	return &m, nil
}

// JoinErrors renders a comma-separated, deterministic human-readable
// summary of a handlerName->error map, used to build ErrorInfo.Message for
// multi-destination failures.
func JoinErrors(causes map[string]string, order []string) string {
	parts := make([]string, 0, len(order))
	for _, name := range order {
		if desc, ok := causes[name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", name, desc))
		}
	}
	return strings.Join(parts, ", ")
}
