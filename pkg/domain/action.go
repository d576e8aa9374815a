package domain

// ActionKind is the closed set of tool actions the agent can dispatch.
// The router matches it exhaustively; adding a tool means adding a variant
// here, not registering a string at runtime.
type ActionKind string

const (
	// ActionReadOverview returns the whole-deck structure snapshot.
	ActionReadOverview ActionKind = "read_overview"

	// ActionReadDetail returns full element trees for selected slides.
	ActionReadDetail ActionKind = "read_detail"

	// ActionExecuteEdit runs a code fragment against the deck in the
	// sandbox.
	ActionExecuteEdit ActionKind = "execute_edit"
)

// Actions lists every valid action kind, in a stable order.
func Actions() []ActionKind {
	return []ActionKind{ActionReadOverview, ActionReadDetail, ActionExecuteEdit}
}

// IsValid reports whether k names one of the closed action variants.
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionReadOverview, ActionReadDetail, ActionExecuteEdit:
		return true
	}
	return false
}

// Mutates reports whether the action writes to the document. Mutating
// actions are serialized per document path; reads are not.
func (k ActionKind) Mutates() bool {
	return k == ActionExecuteEdit
}

func (k ActionKind) String() string { return string(k) }

// ToolCall is one action request proposed by the decider.
type ToolCall struct {
	ID     string         `json:"id" yaml:"id" mapstructure:"id"`
	Action ActionKind     `json:"action" yaml:"action" mapstructure:"action"`
	Args   map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// ToolResult is the rendered output of one dispatched call. Content is
// always a human-readable string; internal errors never cross this boundary
// as error values.
type ToolResult struct {
	// CallID matches the ToolCall.ID this result answers.
	CallID  string     `json:"call_id"`
	Action  ActionKind `json:"action"`
	Content string     `json:"content"`
	IsError bool       `json:"is_error,omitempty"`
}

// Decision is the decider's proposal for the current turn: an assistant
// message plus zero or more tool calls. Zero calls means the conversation
// is terminal.
type Decision struct {
	Message   string     `json:"message,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Terminal reports whether the decision proposes no further tool work.
func (d Decision) Terminal() bool { return len(d.ToolCalls) == 0 }

// AssistantTurn converts the decision into its history entry.
func (d Decision) AssistantTurn() Turn {
	return Turn{Role: RoleAssistant, Content: d.Message, ToolCalls: d.ToolCalls}
}
