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

package hostgroup

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mygroup")

	doc := &Document{
		Name:        "mygroup",
		Primary:     "primary.example",
		ClusterType: "ovirt",
		Nodes:       []string{"a.example", "b.example"},
	}
	if err := Save(path, doc); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("got %+v, want %+v", got, doc)
	}
}

func TestSaveFixedMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mygroup")
	if err := Save(path, &Document{Name: "mygroup"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Fatalf("expected mode 0644, got %v", info.Mode().Perm())
	}
}

func TestSaveRefusesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "mygroup")
	if err := Save(path, &Document{Name: "mygroup"}); err == nil {
		t.Fatal("expected error when parent directory does not exist")
	}
}

func TestJSONKeyIsMaster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mygroup")
	if err := Save(path, &Document{Name: "g", Primary: "p.example"}); err != nil {
		t.Fatal(err)
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["master"] != "p.example" {
		t.Fatalf("expected JSON key \"master\", got %v", m)
	}
}

func TestApplyToOverridesEmptyFieldsOnly(t *testing.T) {
	doc := &Document{Primary: "", ClusterType: "pacemaker", Nodes: []string{"c.example"}}
	defaults := Defaults{Primary: "cli-primary.example", ClusterType: "none", Nodes: []string{"a.example"}}

	merged := doc.ApplyTo(defaults)
	if merged.Primary != "cli-primary.example" {
		t.Fatalf("expected primary default preserved when doc field empty, got %q", merged.Primary)
	}
	if merged.ClusterType != "pacemaker" {
		t.Fatalf("expected cluster type overridden, got %q", merged.ClusterType)
	}
	want := []string{"a.example", "c.example"}
	if !reflect.DeepEqual(merged.Nodes, want) {
		t.Fatalf("expected nodes appended not replaced, got %v", merged.Nodes)
	}
}
