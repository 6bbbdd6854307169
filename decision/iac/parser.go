// Package iac converts infrastructure-as-code plans into resource changes.
// Only the structural fields the cost core needs are kept; pricing inputs
// come from elsewhere.
package iac

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parser parses Terraform plan JSON output
type Parser struct {
	// IncludeNoOp keeps unchanged resources in the output.
	IncludeNoOp bool
	// IncludeDataSources keeps data-source reads in the output.
	IncludeDataSources bool
}

// NewParser creates a new Terraform plan parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile parses a Terraform plan JSON file
func (p *Parser) ParseFile(path string) ([]ResourceChange, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse parses Terraform plan JSON from a reader
func (p *Parser) Parse(r io.Reader) ([]ResourceChange, error) {
	var rawPlan TerraformPlanJSON
	if err := json.NewDecoder(r).Decode(&rawPlan); err != nil {
		return nil, fmt.Errorf("failed to decode plan JSON: %w", err)
	}
	return p.transform(&rawPlan), nil
}

// ParseBytes parses Terraform plan JSON from bytes
func (p *Parser) ParseBytes(data []byte) ([]ResourceChange, error) {
	var rawPlan TerraformPlanJSON
	if err := json.Unmarshal(data, &rawPlan); err != nil {
		return nil, fmt.Errorf("failed to decode plan JSON: %w", err)
	}
	return p.transform(&rawPlan), nil
}

func (p *Parser) transform(raw *TerraformPlanJSON) []ResourceChange {
	changes := make([]ResourceChange, 0, len(raw.ResourceChanges))

	for _, rc := range raw.ResourceChanges {
		if rc.Mode == "data" && !p.IncludeDataSources {
			continue
		}

		change := ResourceChange{
			ID:         rc.Address,
			Type:       rc.Type,
			Name:       rc.Name,
			ModulePath: rc.ModuleAddress,
			Provider:   extractProviderFromAddress(rc.ProviderName),
			Action:     determineAction(rc.Change.Actions),
			Before:     rc.Change.Before,
			After:      rc.Change.After,
		}
		if change.ModulePath == "" {
			change.ModulePath = modulePathFromAddress(rc.Address)
		}
		if change.Action == ActionNoOp && !p.IncludeNoOp {
			continue
		}

		// Prefer planned tags; deletes only have prior state
		if change.After != nil {
			change.Tags = ExtractTags(change.After)
		} else {
			change.Tags = ExtractTags(change.Before)
		}

		changes = append(changes, change)
	}

	return changes
}

// determineAction maps Terraform actions to our ChangeAction
func determineAction(actions []string) ChangeAction {
	hasCreate := contains(actions, "create")
	hasDelete := contains(actions, "delete")

	switch {
	case hasCreate && hasDelete:
		return ActionReplace
	case hasCreate:
		return ActionCreate
	case hasDelete:
		return ActionDelete
	case contains(actions, "update"):
		return ActionUpdate
	default:
		// "read" and empty action lists carry no cost change
		return ActionNoOp
	}
}

// =============================================================================
// RAW TERRAFORM JSON STRUCTURES
// =============================================================================

// TerraformPlanJSON represents the raw terraform show -json output
type TerraformPlanJSON struct {
	FormatVersion    string              `json:"format_version"`
	TerraformVersion string              `json:"terraform_version"`
	ResourceChanges  []RawResourceChange `json:"resource_changes"`
}

type RawResourceChange struct {
	Address       string      `json:"address"`
	ModuleAddress string      `json:"module_address,omitempty"`
	Mode          string      `json:"mode"`
	Type          string      `json:"type"`
	Name          string      `json:"name"`
	Index         interface{} `json:"index,omitempty"`
	ProviderName  string      `json:"provider_name"`
	Change        RawChange   `json:"change"`
}

type RawChange struct {
	Actions []string               `json:"actions"`
	Before  map[string]interface{} `json:"before"`
	After   map[string]interface{} `json:"after"`
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func extractProviderFromAddress(providerName string) string {
	// registry.terraform.io/hashicorp/aws -> aws
	parts := strings.Split(providerName, "/")
	return parts[len(parts)-1]
}

// modulePathFromAddress returns "module.a.module.b" for
// "module.a.module.b.aws_instance.web".
func modulePathFromAddress(address string) string {
	parts := strings.Split(address, ".")
	var path []string
	for i := 0; i+1 < len(parts) && parts[i] == "module"; i += 2 {
		path = append(path, parts[i], parts[i+1])
	}
	return strings.Join(path, ".")
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
