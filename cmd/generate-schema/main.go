package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/catwalk/pkg/config"
)

func main() {
	// Generate JSON schema from Config struct
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions for simplicity
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})

	// Add schema metadata
	schema.Title = "catwalk Configuration"
	schema.Description = "Configuration schema for the catwalk catalog walker"
	schema.Version = "1.0.0"

	// Constrain the enumerated fields the validator checks
	enums := map[string][]any{
		"logging.format": {"text", "json"},
		"image.type":     {"file", "s3"},
		"catalog.format": {"hfsplus"},
		"catalog.store":  {"memory", "badger"},
		"output.format":  {"text", "json", "yaml"},
	}
	for path, values := range enums {
		if prop := property(schema, path); prop != nil {
			prop.Enum = values
		}
	}

	// Marshal to pretty JSON
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	// Write to file
	outputFile := "config.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}

// property returns the schema of a dotted property path, or nil.
func property(schema *jsonschema.Schema, path string) *jsonschema.Schema {
	current := schema
	for _, name := range strings.Split(path, ".") {
		if current == nil || current.Properties == nil {
			return nil
		}
		next, ok := current.Properties.Get(name)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}
