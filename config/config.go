// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the fieldex configuration file and its environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/jcodagnone/fieldex/artifact"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/policy"
	"github.com/jcodagnone/fieldex/training"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIELDEX_"

// Pipeline configures document processing.
type Pipeline struct {
	// Workers bounds the blocks classified concurrently. Zero means one per
	// CPU.
	Workers int `yaml:"workers"`
}

// Store configures the results database.
type Store struct {
	// Path of the DuckDB database. Empty means in memory.
	Path string `yaml:"path"`
}

// Artifacts configures where models are kept. Minio takes precedence over
// Dir when set.
type Artifacts struct {
	Dir     string                `yaml:"dir"`
	Version string                `yaml:"version"`
	Minio   *artifact.MinioConfig `yaml:"minio,omitempty"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr"`
}

// Config is the whole configuration.
type Config struct {
	Features  features.Config  `yaml:"features"`
	Policy    policy.Config    `yaml:"policy"`
	Training  training.Options `yaml:"training"`
	Pipeline  Pipeline         `yaml:"pipeline"`
	Store     Store            `yaml:"store"`
	Artifacts Artifacts        `yaml:"artifacts"`
	Server    Server           `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Features:  features.DefaultConfig(),
		Policy:    policy.DefaultConfig(),
		Training:  training.DefaultOptions(),
		Store:     Store{Path: "fieldex.db"},
		Artifacts: Artifacts{Dir: "models"},
		Server:    Server{Addr: ":8080"},
	}
}

// Load reads the defaults, then the file at path (if path is not empty),
// then a .env file and the environment. The result is validated.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}

		if err := c.decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// decode overlays a YAML document. Unknown keys are errors.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config: %w", err)
	}

	return nil
}

// ApplyEnv overrides the settings that have an environment variable.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	str("DB", &c.Store.Path)
	str("ADDR", &c.Server.Addr)
	str("ARTIFACTS_DIR", &c.Artifacts.Dir)
	str("MODEL_VERSION", &c.Artifacts.Version)

	if v, ok := lookup(EnvPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}

		c.Pipeline.Workers = n
	}

	if v, ok := lookup(EnvPrefix + "MINIO_ENDPOINT"); ok && v != "" {
		if c.Artifacts.Minio == nil {
			c.Artifacts.Minio = &artifact.MinioConfig{Bucket: "fieldex"}
		}

		c.Artifacts.Minio.Endpoint = v
	}

	if m := c.Artifacts.Minio; m != nil {
		str("MINIO_ACCESS_KEY", &m.AccessKey)
		str("MINIO_SECRET_KEY", &m.SecretKey)
		str("MINIO_BUCKET", &m.Bucket)

		for name, dst := range map[string]*bool{"MINIO_USE_SSL": &m.UseSSL, "MINIO_TRACE": &m.Trace} {
			if v, ok := lookup(EnvPrefix + name); ok {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
				}

				*dst = b
			}
		}
	}

	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if err := c.Training.Validate(); err != nil {
		return err
	}

	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline: workers must not be negative, got %d", c.Pipeline.Workers)
	}

	if m := c.Artifacts.Minio; m != nil {
		if m.Endpoint == "" || m.Bucket == "" {
			return errors.New("artifacts: minio needs an endpoint and a bucket")
		}
	} else if c.Artifacts.Dir == "" {
		return errors.New("artifacts: a directory or a minio endpoint is required")
	}

	if c.Artifacts.Version != "" {
		if err := artifact.ValidateVersion(c.Artifacts.Version); err != nil {
			return fmt.Errorf("artifacts: %w", err)
		}
	}

	return nil
}
