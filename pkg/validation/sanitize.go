package validation

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	inputPolicyOnce sync.Once
	inputPolicy     *bluemonday.Policy
)

// Sanitize strips markup from string input. Other values pass through.
// Entities are left escaped the way bluemonday emits them.
func Sanitize(value any) any {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return value
	}
	return inputSanitizer().Sanitize(s)
}

func inputSanitizer() *bluemonday.Policy {
	inputPolicyOnce.Do(func() {
		inputPolicy = bluemonday.StrictPolicy()
	})
	return inputPolicy
}
