// Package regression labels resource changes with the kind of cost
// regression they cause and scores how severe that regression is.
package regression

import (
	"strings"

	"github.com/google/go-cmp/cmp"

	"costrisk/decision/iac"
)

// RegressionType is the structural category of change behind a cost delta.
type RegressionType string

const (
	TypeConfiguration   RegressionType = "configuration"
	TypeProvisioning    RegressionType = "provisioning"
	TypeScaling         RegressionType = "scaling"
	TypeTrafficInferred RegressionType = "traffic_inferred"
	TypeIndirectCost    RegressionType = "indirect_cost"
)

// Label is the human-facing name of the regression type.
func (t RegressionType) Label() string {
	switch t {
	case TypeConfiguration:
		return "Configuration"
	case TypeProvisioning:
		return "Provisioning"
	case TypeScaling:
		return "Scaling"
	case TypeTrafficInferred:
		return "Traffic-inferred"
	case TypeIndirectCost:
		return "Indirect cost"
	default:
		return "Unknown"
	}
}

// Classification is a regression type plus the attributes that decided it.
type Classification struct {
	Type     RegressionType `json:"type"`
	Evidence []string       `json:"evidence,omitempty"`
}

// Attribute paths checked for billing-relevant configuration changes.
var configurationAttributes = []string{
	// billing mode
	"billing_mode",
	"capacity_mode",
	// lifecycle policy
	"lifecycle_rule",
	"lifecycle_policy",
	"lifecycle_configuration",
	"lifecycle_policy_text",
	// encryption
	"encrypted",
	"storage_encrypted",
	"kms_key_id",
	"server_side_encryption",
	"server_side_encryption_configuration",
	"encryption_configuration",
	// storage class
	"storage_class",
	"storage_type",
	"volume_type",
}

// Attribute paths whose numeric increase means the resource scaled out.
var scalingAttributes = []string{
	// instance count
	"instance_count",
	"count",
	"number_of_nodes",
	"num_cache_nodes",
	"node_count",
	// autoscaling desired/max capacity
	"desired_capacity",
	"desired_count",
	"max_size",
	"max_capacity",
	"scaling_config.desired_size",
	"scaling_config.max_size",
	// reserved concurrency
	"reserved_concurrent_executions",
	"provisioned_concurrent_executions",
	// replica count
	"replicas",
	"replica_count",
	"read_replica_count",
}

// Type fragments of resources whose cost follows traffic.
var trafficSensitiveTypes = []string{
	"api_gateway",
	"apigateway",
	"apigatewayv2",
	"nat_gateway",
	"aws_lb",
	"aws_alb",
	"aws_elb",
	"load_balancer",
	"loadbalancer",
	"cloudfront",
	"cdn",
	"front_door",
	"frontdoor",
}

// Classifier assigns regression types. It is stateless and safe for
// concurrent use.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the regression type for a change. First match wins.
func (c *Classifier) Classify(change iac.ResourceChange) RegressionType {
	return c.ClassifyWithEvidence(change).Type
}

// ClassifyWithEvidence classifies a change and reports which attributes
// triggered the decision.
func (c *Classifier) ClassifyWithEvidence(change iac.ResourceChange) Classification {
	if change.Action == iac.ActionUpdate {
		if changed := changedAttributes(change.Before, change.After, configurationAttributes); len(changed) > 0 {
			return Classification{Type: TypeConfiguration, Evidence: changed}
		}
	}

	if change.Action == iac.ActionCreate || change.Action == iac.ActionReplace {
		return Classification{Type: TypeProvisioning, Evidence: []string{"action:" + string(change.Action)}}
	}

	if change.Action == iac.ActionUpdate {
		if increased := increasedAttributes(change.Before, change.After, scalingAttributes); len(increased) > 0 {
			return Classification{Type: TypeScaling, Evidence: increased}
		}
	}

	if IsTrafficSensitive(change.Type) {
		return Classification{Type: TypeTrafficInferred, Evidence: []string{"type:" + change.Type}}
	}

	return Classification{Type: TypeIndirectCost}
}

// IsTrafficSensitive reports whether a resource type is billed by traffic.
func IsTrafficSensitive(resourceType string) bool {
	t := strings.ToLower(resourceType)
	for _, fragment := range trafficSensitiveTypes {
		if strings.Contains(t, fragment) {
			return true
		}
	}
	return false
}

func changedAttributes(before, after map[string]interface{}, paths []string) []string {
	var changed []string
	for _, path := range paths {
		b, bok := iac.LookupAttribute(before, path)
		a, aok := iac.LookupAttribute(after, path)
		if !bok && !aok {
			continue
		}
		if bok != aok || !cmp.Equal(b, a) {
			changed = append(changed, path)
		}
	}
	return changed
}

func increasedAttributes(before, after map[string]interface{}, paths []string) []string {
	var increased []string
	for _, path := range paths {
		b, bok := iac.NumericAttribute(before, path)
		a, aok := iac.NumericAttribute(after, path)
		if bok && aok && a > b {
			increased = append(increased, path)
		}
	}
	return increased
}
