package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

const schemaName = "phantomjs-alarm.schema.json"

const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "project":       {"type": "string", "pattern": "^[A-Za-z0-9._-]+$"},
    "dest_dir":      {"type": "string", "minLength": 1},
    "work_dir":      {"type": "string"},
    "mirror":        {"type": "string", "pattern": "^https?://"},
    "repo_path":     {"type": "string", "pattern": "\\{arch\\}"},
    "package_ext":   {"type": "string", "enum": [".pkg.tar.xz", ".pkg.tar.zst", ".pkg.tar.gz"]},
    "architectures": {
      "type": "array",
      "minItems": 1,
      "uniqueItems": true,
      "items": {"type": "string", "pattern": "^[a-z0-9_]+$"}
    },
    "binary_entry":  {"type": "string", "minLength": 1},
    "release_url":   {"type": "string", "pattern": "^https?://.*\\{version\\}"},
    "release_files": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "format":        {"type": "string", "enum": ["bz2", "xz"]},
    "keyring":       {"type": "string"},
    "progress":      {"type": "boolean"},
    "report_dir":    {"type": "string"},
    "http": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "timeout":    {"type": "string", "pattern": "^[0-9]+(ns|us|ms|s|m|h)([0-9]+(ns|us|ms|s|m|h))*$"},
        "user_agent": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level":  {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["console", "json"]}
      }
    },
    "publish": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "s3": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "enabled":  {"type": "boolean"},
            "endpoint": {"type": "string"},
            "bucket":   {"type": "string"},
            "region":   {"type": "string"},
            "prefix":   {"type": "string"}
          }
        }
      }
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaName, strings.NewReader(configSchema)); err != nil {
			compileErr = fmt.Errorf("adding config schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(schemaName)
	})
	return compiledSchema, compileErr
}

// ValidateConfigYAML checks raw YAML configuration data against the embedded schema.
func ValidateConfigYAML(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	sch, err := schema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
