package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formstate/pkg/formdef"
)

type violation struct {
	file     string
	location string
	message  string
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [paths...]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "\nCheck form definitions and OpenAPI x-formstate extensions.\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	paths := pflag.Args()
	if len(paths) == 0 {
		paths = []string{"examples/youtube.yaml", "examples/openapi.yaml"}
	}

	ctx := context.Background()
	var violations []violation
	for _, path := range paths {
		linted, err := lintFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lint %s: %v\n", path, err)
			os.Exit(1)
		}
		violations = append(violations, linted...)
	}

	if len(violations) > 0 {
		sort.Slice(violations, func(i, j int) bool {
			if violations[i].file == violations[j].file {
				if violations[i].location == violations[j].location {
					return violations[i].message < violations[j].message
				}
				return violations[i].location < violations[j].location
			}
			return violations[i].file < violations[j].file
		})
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "%s: %s -> %s\n", v.file, v.location, v.message)
		}
		os.Exit(1)
	}
}

func lintFile(ctx context.Context, path string) ([]violation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if !isOpenAPI(raw) {
		if _, err := formdef.Load(raw); err != nil {
			return []violation{{file: path, location: "definition", message: err.Error()}}, nil
		}
		return nil, nil
	}

	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if doc.Paths == nil {
		return nil, nil
	}

	var result []violation
	for route, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			id := op.OperationID
			if id == "" {
				id = strings.ToLower(method) + ":" + route
			}
			base := []string{"operation", id}
			result = append(result, lintExtensions(path, base, op.Extensions)...)

			body := jsonBody(op)
			if body == nil {
				continue
			}
			result = append(result, lintSchema(path, append(base, "requestBody"), body)...)
			if op.OperationID == "" {
				continue
			}
			if _, err := formdef.FromOpenAPI(ctx, raw, op.OperationID); err != nil {
				result = append(result, violation{file: path, location: formatLocation(base), message: err.Error()})
			}
		}
	}
	return result, nil
}

func isOpenAPI(raw []byte) bool {
	var probe struct {
		OpenAPI string `yaml:"openapi"`
	}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.OpenAPI != ""
}

func jsonBody(op *openapi3.Operation) *openapi3.SchemaRef {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	mt := op.RequestBody.Value.Content.Get("application/json")
	if mt == nil {
		return nil
	}
	return mt.Schema
}

func lintSchema(file string, path []string, ref *openapi3.SchemaRef) []violation {
	if ref == nil || ref.Value == nil {
		return nil
	}
	schema := ref.Value
	result := lintExtensions(file, path, schema.Extensions)

	keys := make([]string, 0, len(schema.Properties))
	for key := range schema.Properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		result = append(result, lintSchema(file, appendPath(path, "properties."+key), schema.Properties[key])...)
	}
	if schema.Items != nil {
		result = append(result, lintSchema(file, appendPath(path, "items"), schema.Items)...)
	}
	return result
}

func lintExtensions(file string, path []string, extensions map[string]any) []violation {
	var result []violation
	for _, problem := range formdef.ExtensionProblems(extensions) {
		result = append(result, violation{file: file, location: formatLocation(path), message: problem})
	}
	return result
}

func appendPath(path []string, segment string) []string {
	next := append([]string(nil), path...)
	next = append(next, segment)
	return next
}

func formatLocation(path []string) string {
	return strings.Join(path, " > ")
}
