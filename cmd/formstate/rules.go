package main

import (
	"strings"

	"github.com/goliatone/go-formstate/pkg/validation"
)

// namedRules are the custom rules definitions may reference by name.
func namedRules() map[string]validation.Rule {
	return map[string]validation.Rule{
		"notAdmin": validation.Custom("notAdmin", func(v any) bool {
			return v != "admin@example.com"
		}, "admin is not allowed"),
		"notBlackListed": validation.Custom("notBlackListed", func(v any) bool {
			s, _ := v.(string)
			return !strings.HasSuffix(s, "baddomain.com")
		}, "This domain is not supported"),
	}
}
