package message

// Context is the mutable wrapper a channel run operates on. It is created
// at the start of execute/replay, mutated in place by processors, and
// discarded once the run completes; only its Export()ed Message outlives
// the run (written to a failure store on failure, or handed back to the
// caller as the execution result).
type Context struct {
	id         string
	content    Content
	metadata   map[string]interface{}
	properties map[string]interface{}
	errorInfo  *ErrorInfo
}

// NewContext builds a fresh run context for id, seeding its skip set from
// skipDestinations (honored from the very first execute, not just replay).
func NewContext(id string, content Content, skipDestinations []string) *Context {
	metadata := map[string]interface{}{}
	if len(skipDestinations) > 0 {
		cp := make([]string, len(skipDestinations))
		copy(cp, skipDestinations)
		metadata[SkipDestinationsKey] = cp
	}
	return &Context{
		id:         id,
		content:    content,
		metadata:   metadata,
		properties: map[string]interface{}{},
	}
}

// FromMessage rebuilds a run context from a previously-persisted Message,
// as used by replay. Error info is NOT cleared here; callers that want
// replay semantics call CleanErrorInfoForReplay explicitly afterward.
func FromMessage(m *Message) *Context {
	cp := m.Clone()
	return &Context{
		id:         cp.ID,
		content:    cp.Content,
		metadata:   cp.Metadata,
		properties: cp.Properties,
		errorInfo:  cp.ErrorInfo,
	}
}

// ID returns the message identifier, assigned once and carried unchanged
// through every subsequent replay.
func (c *Context) ID() string { return c.id }

// Content returns the current content.
func (c *Context) Content() Content { return c.content }

// SetContent replaces the content, as done by a Transformer.
func (c *Context) SetContent(v Content) { c.content = v }

// Properties returns the live properties map for direct mutation by
// processors.
func (c *Context) Properties() map[string]interface{} {
	if c.properties == nil {
		c.properties = map[string]interface{}{}
	}
	return c.properties
}

// Metadata returns the live metadata map. Processors may read and write
// arbitrary keys; SkipDestinationsKey is executor-owned and should only be
// mutated via AddSkipDestination.
func (c *Context) Metadata() map[string]interface{} {
	if c.metadata == nil {
		c.metadata = map[string]interface{}{}
	}
	return c.metadata
}

// ErrorInfo returns the error recorded for this run, if any.
func (c *Context) ErrorInfo() *ErrorInfo { return c.errorInfo }

// SetErrorInfo records the error for this run.
func (c *Context) SetErrorInfo(info *ErrorInfo) { c.errorInfo = info }

// SkipDestinations returns the current skip set.
func (c *Context) SkipDestinations() []string {
	return SkipDestinations(c.metadata)
}

// HasSkipDestination reports whether name is already in the skip set.
func (c *Context) HasSkipDestination(name string) bool {
	return ContainsDestination(c.metadata, name)
}

// AddSkipDestination appends name to the skip set if not already present.
// The set is strictly append-only: names are never removed across
// successive replays of the same logical message.
func (c *Context) AddSkipDestination(name string) {
	if c.HasSkipDestination(name) {
		return
	}
	existing := SkipDestinations(c.metadata)
	existing = append(existing, name)
	if c.metadata == nil {
		c.metadata = map[string]interface{}{}
	}
	c.metadata[SkipDestinationsKey] = existing
}

// CleanErrorInfoForReplay clears previous error info while preserving the
// skip set, matching the semantics replay needs: a fresh attempt, but with
// memory of which destinations already succeeded.
func (c *Context) CleanErrorInfoForReplay() {
	c.errorInfo = nil
}

// Clone returns a deep copy, used by the executor to snapshot state before
// invoking a processor so that, on failure, the persisted Message reflects
// pre-processor content rather than a partially-mutated value.
func (c *Context) Clone() *Context {
	return &Context{
		id:         c.id,
		content:    c.content.Clone(),
		metadata:   CloneStringMap(c.metadata),
		properties: CloneStringMap(c.properties),
		errorInfo:  cloneErrorInfo(c.errorInfo),
	}
}

func cloneErrorInfo(e *ErrorInfo) *ErrorInfo {
	if e == nil {
		return nil
	}
	causes := make(map[string]string, len(e.Causes))
	for k, v := range e.Causes {
		causes[k] = v
	}
	return &ErrorInfo{Message: e.Message, Causes: causes}
}

// Export produces the persisted Message record for this run, suitable for
// writing to a failure store or returning as an execution result.
func (c *Context) Export() *Message {
	return &Message{
		ID:         c.id,
		Content:    c.content.Clone(),
		Metadata:   CloneStringMap(c.metadata),
		Properties: CloneStringMap(c.properties),
		ErrorInfo:  cloneErrorInfo(c.errorInfo),
	}
}
