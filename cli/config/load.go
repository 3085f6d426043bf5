package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "kiln.yaml"

// DefaultEnvFile is the dotenv file looked up when --env-file is not given.
const DefaultEnvFile = ".env"

// Load reads a YAML config file, expands environment variables, and decodes
// it over Defaults(). Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}

// Resolve loads the config at path. When path is the default and the file
// does not exist, Defaults() is returned; an explicitly named file must exist.
func Resolve(path string, explicit bool) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := Defaults()
			return &cfg, nil
		}
	}
	return Load(path)
}

// LoadEnvFile loads dotenv variables into the process environment before the
// config file is expanded. Existing variables are not overridden. A missing
// default file is ignored; a missing explicit file is an error.
func LoadEnvFile(path string, explicit bool) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
