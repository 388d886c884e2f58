// Copyright 2024 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hostgroup persists a named node-set and profile hint as a JSON
// document in a well-known directory, so a prior run's node list can be
// reused without re-enumerating a cluster profile.
package hostgroup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/sos-collector", "hostgroup")

// WellKnownDir is where group names (as opposed to explicit file paths)
// resolve to.
const WellKnownDir = "/var/lib/sos-collector"

// Document is the on-disk JSON shape: {name, master, cluster_type, nodes}.
// The JSON key is "master" per the on-disk format; the Go field is named
// Primary to match this repo's own "primary node" terminology elsewhere.
type Document struct {
	Name        string   `json:"name"`
	Primary     string   `json:"master"`
	ClusterType string   `json:"cluster_type"`
	Nodes       []string `json:"nodes"`
}

// ResolvePath turns a user-supplied group name or path into the file to
// read/write: an existing path is used verbatim, otherwise the name is
// resolved under WellKnownDir.
func ResolvePath(nameOrPath string) string {
	if _, err := os.Stat(nameOrPath); err == nil {
		return nameOrPath
	}
	return filepath.Join(WellKnownDir, nameOrPath)
}

// Load reads and decodes the group document at nameOrPath.
func Load(nameOrPath string) (*Document, error) {
	path := ResolvePath(nameOrPath)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening host group %s: %w", path, err)
	}
	defer file.Close()

	doc := &Document{}
	if err := json.NewDecoder(file).Decode(doc); err != nil {
		return nil, fmt.Errorf("decoding host group %s: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to nameOrPath with fixed mode 0644, overwriting any
// existing file. The containing directory must already exist; Save never
// creates WellKnownDir implicitly.
func Save(nameOrPath string, doc *Document) error {
	path := ResolvePath(nameOrPath)

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("host group directory %s does not exist: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating host group %s: %w", path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding host group %s: %w", path, err)
	}
	plog.Debugf("wrote host group %s", path)
	return nil
}

// Defaults describes the command-line-supplied values a loaded group may
// selectively override.
type Defaults struct {
	Primary     string
	ClusterType string
	Nodes       []string
}

// ApplyTo merges doc into defaults per the override rule: a populated
// field in doc replaces the default, except Nodes, which is appended to
// rather than replacing the default list.
func (doc *Document) ApplyTo(defaults Defaults) Defaults {
	merged := defaults
	if doc.Primary != "" {
		merged.Primary = doc.Primary
	}
	if doc.ClusterType != "" {
		merged.ClusterType = doc.ClusterType
	}
	merged.Nodes = append(append([]string(nil), defaults.Nodes...), doc.Nodes...)
	return merged
}
