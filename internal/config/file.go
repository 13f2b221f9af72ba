package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var errBadLine = errors.New("expected KEY=value")

// DefaultPath returns the configuration file looked up when --config is not given.
func DefaultPath(home string) string {
	return filepath.Join(home, RCFilename)
}

// Load reads the configuration file at path into a flat key/value mapping.
// A missing file is an error only when explicit is set.
func Load(path string, explicit bool) (map[string]string, error) {
	values, err := ReadFile(path)
	if err == nil {
		return values, nil
	}

	if !explicit && errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}

	return nil, err
}

// ReadFile parses a configuration file. The syntax follows the extension:
// .yaml/.yml and .toml hold a flat table, anything else is KEY=value lines.
// Keys are upper-cased.
func ReadFile(path string) (map[string]string, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var raw map[string]any

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err = yaml.Unmarshal(contents, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal yaml settings: %w", err)
		}
	case ".toml":
		if err = toml.Unmarshal(contents, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal toml settings: %w", err)
		}
	default:
		values, err := parseRC(contents)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		return values, nil
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		values[strings.ToUpper(key)] = fmt.Sprint(value)
	}

	return values, nil
}

// parseRC reads dotenv-style assignments: KEY=value, export KEY="value",
// single quotes and # comments.
func parseRC(contents []byte) (map[string]string, error) {
	parsed, err := godotenv.Parse(bytes.NewReader(contents))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadLine, err)
	}

	values := make(map[string]string, len(parsed))
	for key, value := range parsed {
		if strings.TrimSpace(key) == "" {
			return nil, errBadLine
		}

		values[strings.ToUpper(key)] = value
	}

	return values, nil
}
