package sqlgate

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict is the outcome of validating one candidate statement.
// Statement carries the text that is safe to hand to the executor (the
// single trailing terminator, if any, is removed).
type Verdict struct {
	Allowed   bool
	Reason    string
	Rule      string
	Statement string
}

// Rule inspects a statement and either returns the (possibly normalized)
// statement for the next rule or a rejection reason.
type Rule struct {
	Name  string
	Check func(statement string) (string, error)
}

// DeniedKeywords are mutating or administrative keywords that disqualify a
// statement wherever they appear.
var DeniedKeywords = []string{
	"insert", "update", "delete", "drop", "truncate", "alter", "create", "grant",
	"revoke", "replace", "backup", "restore", "copy", "merge", "execute",
}

var deniedKeywordPattern = regexp.MustCompile(`(?i)(` + strings.Join(DeniedKeywords, "|") + `)\s`)

var DefaultRules = []Rule{
	{Name: "non_empty", Check: checkNonEmpty},
	{Name: "single_statement", Check: checkSingleStatement},
	{Name: "deny_list", Check: checkDeniedKeywords},
	{Name: "read_only_prefix", Check: checkReadOnlyPrefix},
}

type Validator struct {
	rules []Rule
}

func NewValidator(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Validator{rules: copied}
}

var defaultValidator = NewValidator()

// Validate runs the default rule list.
func Validate(statement string) Verdict {
	return defaultValidator.Validate(statement)
}

// Validate applies the rules in order and stops at the first rejection. A nil
// Validator uses the default rules.
func (v *Validator) Validate(statement string) Verdict {
	if v == nil {
		v = defaultValidator
	}
	current := statement
	for _, rule := range v.rules {
		next, err := rule.Check(current)
		if err != nil {
			return Verdict{Allowed: false, Reason: err.Error(), Rule: rule.Name}
		}
		current = next
	}
	return Verdict{Allowed: true, Statement: strings.TrimSpace(current)}
}

func checkNonEmpty(statement string) (string, error) {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return "", fmt.Errorf("empty statement")
	}
	return trimmed, nil
}

func checkSingleStatement(statement string) (string, error) {
	switch strings.Count(statement, ";") {
	case 0:
		return statement, nil
	case 1:
		trimmed := strings.TrimSpace(statement)
		if !strings.HasSuffix(trimmed, ";") {
			return "", fmt.Errorf("statement terminator must be the final character")
		}
		return strings.TrimSpace(strings.TrimSuffix(trimmed, ";")), nil
	default:
		return "", fmt.Errorf("multiple statements are not allowed")
	}
}

func checkDeniedKeywords(statement string) (string, error) {
	if match := deniedKeywordPattern.FindStringSubmatch(statement); match != nil {
		return "", fmt.Errorf("forbidden keyword %q", strings.ToLower(match[1]))
	}
	return statement, nil
}

func checkReadOnlyPrefix(statement string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(statement))
	if strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with") {
		return statement, nil
	}
	return "", fmt.Errorf("only read-only SELECT/WITH queries are allowed")
}
