package iac

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChangeAction represents the type of change to a resource
type ChangeAction string

const (
	ActionCreate  ChangeAction = "create"
	ActionUpdate  ChangeAction = "update"
	ActionDelete  ChangeAction = "delete"
	ActionReplace ChangeAction = "replace"
	ActionNoOp    ChangeAction = "no-op"
)

// Valid reports whether a is one of the five known actions.
func (a ChangeAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionReplace, ActionNoOp:
		return true
	}
	return false
}

// ResourceChange is one planned change to an infrastructure resource,
// independent of the plan format it came from.
type ResourceChange struct {
	// Identity
	ID         string `json:"id"`          // module.net.aws_lb.shared[0]
	Type       string `json:"type"`        // aws_lb
	Name       string `json:"name"`        // shared
	ModulePath string `json:"module_path"` // module.net, empty for root
	Provider   string `json:"provider"`    // aws

	Action ChangeAction `json:"action"`

	// Configuration before and after the change. Either may be nil.
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`

	Tags map[string]string `json:"tags,omitempty"`
}

// IsRootScope reports whether the resource lives in the root module.
func (c ResourceChange) IsRootScope() bool {
	return c.ModulePath == ""
}

// UnmarshalJSON accepts Terraform-style action names and validates the action.
func (c *ResourceChange) UnmarshalJSON(data []byte) error {
	type alias ResourceChange
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Action == "" {
		raw.Action = ActionNoOp
	}
	if raw.Action == "noop" {
		raw.Action = ActionNoOp
	}
	if !raw.Action.Valid() {
		return fmt.Errorf("resource %s: unknown action %q", raw.ID, raw.Action)
	}
	*c = ResourceChange(raw)
	return nil
}

// =============================================================================
// ATTRIBUTE HELPERS
// =============================================================================

// LookupAttribute resolves a dotted path in a configuration tree.
// Numeric segments index into lists; any other segment applied to a list
// descends into its first element, since Terraform encodes nested blocks as
// single-element lists.
func LookupAttribute(attrs map[string]interface{}, path string) (interface{}, bool) {
	if attrs == nil {
		return nil, false
	}
	current := interface{}(attrs)

	for _, part := range strings.Split(path, ".") {
		if arr, ok := current.([]interface{}); ok {
			if idx, err := strconv.Atoi(part); err == nil {
				if idx < 0 || idx >= len(arr) {
					return nil, false
				}
				current = arr[idx]
				continue
			}
			if len(arr) == 0 {
				return nil, false
			}
			current = arr[0]
		}

		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, current != nil
}

// NumericAttribute resolves path and converts the value to a float.
func NumericAttribute(attrs map[string]interface{}, path string) (float64, bool) {
	v, ok := LookupAttribute(attrs, path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

// ExtractTags collects string tags from a configuration tree.
func ExtractTags(attrs map[string]interface{}) map[string]string {
	raw, ok := attrs["tags"].(map[string]interface{})
	if !ok {
		return nil
	}
	tags := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}
	return tags
}
