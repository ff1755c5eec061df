package hook

import "encoding/json"

// Request is the hook payload the agent's tool-execution layer sends on
// stdin: a tool name tag plus whatever that tool's input looks like. Only
// ToolInput.Command and ToolInput.WorkingDir are read; any other fields are
// dropped by the decoder, so an agent can carry extra fields without H
// choking on them.
type Request struct {
	ToolName  string    `json:"tool_name"`
	ToolInput ToolInput `json:"tool_input"`
}

// ToolInput is the subset of the tool call H actually inspects.
type ToolInput struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
}

// Response is H's stdout payload (spec.md §6.1). A permissive decision is
// either empty output or `{}`; PermissionDecision is only set to "deny" when
// the agent must not re-run the command locally.
type Response struct {
	PermissionDecision string `json:"permissionDecision,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// ParseRequest decodes raw stdin bytes into a Request. Any malformed input
// is the caller's cue to fail open (spec.md §4.2 step 1); ParseRequest
// itself just reports the decode error rather than deciding policy.
func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}
