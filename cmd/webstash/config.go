package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// configSchema rejects typo'd keys and wrong types before any value
// reaches the daemon.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "addr":            {"type": "string"},
    "dataDir":         {"type": "string"},
    "queueDsn":        {"type": "string"},
    "credentialsFile": {"type": "string"},
    "extractorUrl":    {"type": "string"},
    "drainInterval":   {"type": "string"},
    "apiToken":        {"type": "string"},
    "maxBodyBytes":    {"type": "integer", "minimum": 1}
  }
}`

type fileConfig struct {
	Addr            string `json:"addr"`
	DataDir         string `json:"dataDir"`
	QueueDSN        string `json:"queueDsn"`
	CredentialsFile string `json:"credentialsFile"`
	ExtractorURL    string `json:"extractorUrl"`
	DrainInterval   string `json:"drainInterval"`
	APIToken        string `json:"apiToken"`
	MaxBodyBytes    int64  `json:"maxBodyBytes"`
}

// applyConfigFile validates the JSON config against the embedded
// schema and copies its values into any WEBSTASH_* variables the
// environment left unset. Environment wins over file.
func applyConfigFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return fmt.Errorf("config schema is invalid: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webstash-config.json", schemaDoc); err != nil {
		return fmt.Errorf("config schema is invalid: %w", err)
	}
	schema, err := compiler.Compile("webstash-config.json")
	if err != nil {
		return fmt.Errorf("config schema is invalid: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", path, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%s does not match the config schema: %w", path, err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}
	setIfUnset("WEBSTASH_ADDR", cfg.Addr)
	setIfUnset("WEBSTASH_DATA_DIR", cfg.DataDir)
	setIfUnset("WEBSTASH_QUEUE_DSN", cfg.QueueDSN)
	setIfUnset("WEBSTASH_CREDENTIALS_FILE", cfg.CredentialsFile)
	setIfUnset("WEBSTASH_EXTRACTOR_URL", cfg.ExtractorURL)
	setIfUnset("WEBSTASH_DRAIN_INTERVAL", cfg.DrainInterval)
	setIfUnset("WEBSTASH_API_TOKEN", cfg.APIToken)
	if cfg.MaxBodyBytes > 0 {
		setIfUnset("WEBSTASH_MAX_BODY_BYTES", fmt.Sprintf("%d", cfg.MaxBodyBytes))
	}
	return nil
}

func setIfUnset(name, value string) {
	if value == "" {
		return
	}
	if _, present := os.LookupEnv(name); present {
		return
	}
	os.Setenv(name, value)
}
