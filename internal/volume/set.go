// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
)

// Names of the fixed persistent directories, in provisioning order.
const (
	CKANConfig  = "ckan_config"
	CKANHome    = "ckan_home"
	CKANStorage = "ckan_storage"
	PGData      = "pg_data"
	SolrData    = "solr_data"
	JupyterData = "jupyter_data"
	Neo4jData   = "neo4j_data"
)

var names = []string{CKANConfig, CKANHome, CKANStorage, PGData, SolrData, JupyterData, Neo4jData}

// Set is the fixed, enumerable set of volume directories under one root.
type Set struct {
	root string
}

// NewSet returns the directory set rooted at root, made absolute.
func NewSet(root string) (*Set, error) {
	if root == "" {
		return nil, errors.New("volume root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve volume root %s: %w", root, err)
	}
	return &Set{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Set) Root() string { return s.root }

// Names returns the directory names in provisioning order.
func (s *Set) Names() []string { return slices.Clone(names) }

// Paths returns the absolute directory paths in provisioning order.
func (s *Set) Paths() []string {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.root, name)
	}
	return paths
}

// Path returns the absolute path of the named directory.
func (s *Set) Path(name string) (string, bool) {
	if !slices.Contains(names, name) {
		return "", false
	}
	return filepath.Join(s.root, name), true
}
