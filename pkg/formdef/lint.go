package formdef

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formstate/pkg/condition/expr"
)

var extensionKeys = map[string]bool{
	"label":          true,
	"input":          true,
	"help":           true,
	"required":       true,
	"disabledWhen":   true,
	"sanitize":       true,
	"validate":       true,
	"deps":           true,
	"cue":            true,
	"cueMessage":     true,
	"patternMessage": true,
}

// ExtensionKeys lists the keys accepted inside an x-formstate block.
func ExtensionKeys() []string {
	keys := make([]string, 0, len(extensionKeys))
	for k := range extensionKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExtensionProblems reports unsupported keys and malformed values in the
// x-formstate entries of an OpenAPI extensions map.
func ExtensionProblems(extensions map[string]any) []string {
	var problems []string
	names := make([]string, 0, len(extensions))
	for k := range extensions {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		if strings.HasPrefix(name, extensionKey+"-") {
			problems = append(problems, fmt.Sprintf("use a nested %s object instead of %q", extensionKey, name))
		}
	}

	value, ok := extensions[extensionKey]
	if !ok {
		return problems
	}
	nested, ok := value.(map[string]any)
	if !ok {
		return append(problems, fmt.Sprintf("%s must be an object, found %T", extensionKey, value))
	}
	keys := make([]string, 0, len(nested))
	for k := range nested {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !extensionKeys[k] {
			problems = append(problems, fmt.Sprintf("unsupported %s key %q (supported: %s)",
				extensionKey, k, strings.Join(ExtensionKeys(), ", ")))
		}
	}

	ext, err := readExtension(extensions)
	if err != nil {
		return append(problems, err.Error())
	}
	if ext.DisabledWhen != "" {
		if _, err := expr.Compile(ext.DisabledWhen); err != nil {
			problems = append(problems, fmt.Sprintf("disabledWhen: %v", err))
		}
	}
	return problems
}
