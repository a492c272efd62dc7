package model

import (
	"fmt"
	"regexp"
	"strings"
)

// ConditionMode controls how the individual conditions in a ConditionSet
// are combined.
type ConditionMode string

const (
	ConditionModeAlways ConditionMode = "always" // Match every change.
	ConditionModeAll    ConditionMode = "all"    // All conditions must match.
	ConditionModeAny    ConditionMode = "any"    // At least one condition must match.
)

// ConditionOp is a comparison operator applied to a single target field.
type ConditionOp string

const (
	OpIs         ConditionOp = "is"
	OpIsNot      ConditionOp = "is-not"
	OpOneOf      ConditionOp = "one-of"
	OpContains   ConditionOp = "contains"
	OpStartsWith ConditionOp = "starts-with"
	OpMatchesRe  ConditionOp = "matches-regex"
)

// Condition is a single field comparison inside a ConditionSet.
type Condition struct {
	Field string      `json:"field"` // "repository", "branch", "group", "submitter".
	Op    ConditionOp `json:"op"`
	Value string      `json:"value"`
}

// ConditionSet is the serialized condition expression stored on an
// IntegrationConfig. The zero value (empty mode) matches nothing, so a
// config with an unreadable expression never triggers builds.
type ConditionSet struct {
	Mode       ConditionMode `json:"mode"`
	Conditions []Condition   `json:"conditions"`
}

// ConditionTarget is the view of a review request that conditions are
// evaluated against.
type ConditionTarget struct {
	Repository string
	Branch     string
	Groups     []string
	Submitter  string
}

// Matches evaluates the condition set against the target. An error is
// returned for malformed conditions (unknown field or operator, invalid
// regex); callers treat evaluation errors as "does not match".
func (cs ConditionSet) Matches(target ConditionTarget) (bool, error) {
	switch cs.Mode {
	case ConditionModeAlways:
		return true, nil
	case ConditionModeAll:
		for _, cond := range cs.Conditions {
			ok, err := cond.matches(target)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case ConditionModeAny:
		for _, cond := range cs.Conditions {
			ok, err := cond.matches(target)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown condition mode %q", cs.Mode)
	}
}

func (c Condition) matches(target ConditionTarget) (bool, error) {
	values, err := c.fieldValues(target)
	if err != nil {
		return false, err
	}

	for _, v := range values {
		ok, err := c.compare(v)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// fieldValues returns the target values the condition's field refers to.
// Multi-valued fields (groups) match if any value matches.
func (c Condition) fieldValues(target ConditionTarget) ([]string, error) {
	switch c.Field {
	case "repository":
		return []string{target.Repository}, nil
	case "branch":
		return []string{target.Branch}, nil
	case "submitter":
		return []string{target.Submitter}, nil
	case "group":
		return target.Groups, nil
	default:
		return nil, fmt.Errorf("unknown condition field %q", c.Field)
	}
}

func (c Condition) compare(value string) (bool, error) {
	switch c.Op {
	case OpIs:
		return value == c.Value, nil
	case OpIsNot:
		return value != c.Value, nil
	case OpOneOf:
		for _, candidate := range strings.Split(c.Value, ",") {
			if value == strings.TrimSpace(candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpContains:
		return strings.Contains(value, c.Value), nil
	case OpStartsWith:
		return strings.HasPrefix(value, c.Value), nil
	case OpMatchesRe:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false, fmt.Errorf("invalid condition regex %q: %w", c.Value, err)
		}
		return re.MatchString(value), nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", c.Op)
	}
}
