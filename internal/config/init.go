// ABOUTME: First-run config creation and back-filling of keys added in newer releases
// ABOUTME: Writes the default file when missing and adds missing keys without touching existing ones

package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// InitResult describes what Init did to the file.
type InitResult struct {
	Created   bool
	AddedKeys []string
}

// Init makes sure path holds a complete configuration. A missing file is
// created from the defaults with a generated JWT secret. An existing file
// gains any missing keys. The loaded configuration is returned.
func Init(path string) (*Config, *InitResult, error) {
	defaults, err := Generate()
	if err != nil {
		return nil, nil, err
	}
	defaultDoc, err := toDocument(path, defaults)
	if err != nil {
		return nil, nil, err
	}

	res := &InitResult{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		res.Created = true
		if err := writeDocument(path, defaultDoc); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, fmt.Errorf("reading config file: %w", err)
	default:
		doc, err := decodeDocument(path, data)
		if err != nil {
			return nil, nil, err
		}
		res.AddedKeys = backfill(doc, defaultDoc, "")
		if len(res.AddedKeys) > 0 {
			if err := writeDocument(path, doc); err != nil {
				return nil, nil, err
			}
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, res, nil
}

// Generate returns the defaults with a freshly generated JWT secret.
func Generate() (*Config, error) {
	cfg := Default()
	secret := make([]byte, MinJWTSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating jwt secret: %w", err)
	}
	cfg.Auth.JWTSecret = hex.EncodeToString(secret)
	return cfg, nil
}

// Write saves cfg to path in the format its extension selects.
func Write(path string, cfg *Config) error {
	doc, err := toDocument(path, cfg)
	if err != nil {
		return err
	}
	return writeDocument(path, doc)
}

// toDocument converts cfg to the generic map form of the file's format.
func toDocument(path string, cfg *Config) (map[string]any, error) {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding defaults: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		if err := enc.Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding defaults: %w", err)
		}
		enc.Close()
	}
	return decodeDocument(path, buf.Bytes())
}

func decodeDocument(path string, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return doc, nil
}

func writeDocument(path string, doc map[string]any) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		enc.Close()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// backfill copies keys present in defaults but absent from doc, recursing
// into sections. It returns the dotted names of the added keys.
func backfill(doc, defaults map[string]any, prefix string) []string {
	var added []string
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		def := defaults[k]
		cur, ok := doc[k]
		if !ok || (cur == nil && def != nil) {
			doc[k] = def
			added = append(added, prefix+k)
			continue
		}
		curMap, curIsMap := cur.(map[string]any)
		defMap, defIsMap := def.(map[string]any)
		if curIsMap && defIsMap {
			added = append(added, backfill(curMap, defMap, prefix+k+".")...)
		}
	}
	return added
}
