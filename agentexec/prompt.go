/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentexec

import (
	"encoding/json"
	"fmt"

	"chainguard.dev/conductor/agentexec/schema"
	"gopkg.in/yaml.v3"
)

// verdict is the JSON document every agent must answer with. The provider
// backends parse it out of the model's response text.
type verdict struct {
	Status       string    `json:"status" jsonschema:"enum=passed,enum=failed,jsonschema_description=The verdict on the change"`
	Findings     []Finding `json:"findings,omitempty"`
	FixesApplied []string  `json:"fixes_applied,omitempty"`
	Summary      string    `json:"summary,omitempty"`
}

// SystemPrompt renders the role instructions plus the response contract for
// an agent. The response schema is derived from the verdict type so the
// contract cannot drift from the parser.
func SystemPrompt(spec AgentSpec) (string, error) {
	schemaJSON, err := json.MarshalIndent(schema.ReflectType[verdict](), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling verdict schema: %w", err)
	}
	return fmt.Sprintf(`You are the %q quality agent. Your role: %s

Evaluate the change you are given and respond with a single JSON document
matching this schema, inside a `+"```json"+` code block:

%s

Use status "passed" when nothing blocks the change, "failed" when you found
problems that need another pass. List each problem as a finding.`,
		spec.Name, spec.Role, schemaJSON), nil
}

// UserPrompt renders the agent's prompt followed by the change context as a
// YAML block, so the model sees structured fields rather than prose.
func UserPrompt(spec AgentSpec, change ChangeContext) (string, error) {
	ctxYAML, err := yaml.Marshal(change)
	if err != nil {
		return "", fmt.Errorf("marshaling change context: %w", err)
	}
	return fmt.Sprintf("%s\n\n<change>\n%s</change>\n", spec.Prompt, ctxYAML), nil
}
