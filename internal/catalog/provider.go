package catalog

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout of a schema definition file.
type catalogFile struct {
	Version string   `yaml:"version,omitempty"`
	Models  []Model  `yaml:"models"`
	Metrics []Metric `yaml:"metrics,omitempty"`
}

// FileProvider loads snapshots from a YAML schema definition file.
type FileProvider struct {
	Path string
}

// Fetch reads and parses the schema file. The snapshot version is the
// file's declared version, or a content hash when none is declared.
func (p *FileProvider) Fetch(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	version := cf.Version
	if version == "" {
		sum := sha256.Sum256(data)
		version = fmt.Sprintf("file-%x", sum[:6])
	}
	return NewSnapshot(cf.Models, cf.Metrics, version), nil
}

// Introspector is the subset of a database backend the BackendProvider
// needs to build a snapshot.
type Introspector interface {
	Introspect(ctx context.Context) ([]Model, error)
}

// BackendProvider builds snapshots by introspecting a live database.
// Metrics cannot be introspected; a static metric list may be supplied.
type BackendProvider struct {
	Backend Introspector
	Metrics []Metric
}

// Fetch introspects the backend. The snapshot version is the fetch
// timestamp.
func (p *BackendProvider) Fetch(ctx context.Context) (*Snapshot, error) {
	models, err := p.Backend.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	version := "db-" + time.Now().UTC().Format("20060102T150405Z")
	return NewSnapshot(models, p.Metrics, version), nil
}
