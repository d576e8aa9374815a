package domain

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry in the conversation history.
// Assistant turns may carry tool calls; tool turns answer exactly one of
// them and carry the matching ToolCallID.
type Turn struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool-result turn back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// State represents the conversation snapshot for one session.
// History is append-only; the document path follows last-known-good merge
// semantics (see MergeDocumentPath) and is the only field that does.
type State struct {
	// Turns is the ordered conversation history. Never rewritten, only
	// appended to.
	Turns []Turn `json:"turns"`

	// DocumentPath is the deck being edited. Once set it survives merges
	// with an unset incoming value.
	DocumentPath string `json:"document_path,omitempty"`
}

// NewState creates a state with the document path set and no history.
func NewState(documentPath string) *State {
	return &State{DocumentPath: documentPath}
}

// Append adds turns to the history in order.
func (s *State) Append(turns ...Turn) {
	s.Turns = append(s.Turns, turns...)
}

// LastTurn returns the most recent turn, or nil if the history is empty.
func (s *State) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}

// LastAssistantMessage returns the content of the most recent assistant
// turn that said something, or "" when the assistant has not spoken yet.
// Surfaces use it to pick the reply to show for a finished exchange.
func (s *State) LastAssistantMessage() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant && s.Turns[i].Content != "" {
			return s.Turns[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy. Stores hand copies out so callers can never
// alias persisted history.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{DocumentPath: s.DocumentPath}
	if s.Turns != nil {
		out.Turns = make([]Turn, len(s.Turns))
		for i, t := range s.Turns {
			out.Turns[i] = cloneTurn(t)
		}
	}
	return out
}

func cloneTurn(t Turn) Turn {
	out := t
	if t.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		for i, c := range t.ToolCalls {
			out.ToolCalls[i] = cloneToolCall(c)
		}
	}
	return out
}

func cloneToolCall(c ToolCall) ToolCall {
	out := c
	if c.Args != nil {
		out.Args = make(map[string]any, len(c.Args))
		for k, v := range c.Args {
			out.Args[k] = v
		}
	}
	return out
}

// MergeDocumentPath applies the last-known-good policy for the document
// path: the incoming value wins only when it is set. This is the one field
// with merge semantics; history always appends.
func MergeDocumentPath(current, incoming string) string {
	if incoming != "" {
		return incoming
	}
	return current
}

// SetDocumentPath merges a possibly-unset incoming path into the state.
func (s *State) SetDocumentPath(incoming string) {
	s.DocumentPath = MergeDocumentPath(s.DocumentPath, incoming)
}
