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

package driver

import (
	"reflect"
	"testing"
)

func TestParseOptionStringEmpty(t *testing.T) {
	got := ParseOptionString("   ")
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}

func TestParseOptionStringSplitsAndTrims(t *testing.T) {
	got := ParseOptionString(" networking, kernel ,process")
	want := []string{"networking", "kernel", "process"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseClusterOptionWellFormed(t *testing.T) {
	profile, option, value, err := ParseClusterOption("ovirt.no-database=True")
	if err != nil {
		t.Fatal(err)
	}
	if profile != "ovirt" || option != "no-database" || value != "True" {
		t.Fatalf("got (%q, %q, %q)", profile, option, value)
	}
}

func TestParseClusterOptionMissingEquals(t *testing.T) {
	if _, _, _, err := ParseClusterOption("ovirt.no-database"); err == nil {
		t.Fatal("expected error for missing '='")
	}
}

func TestParseClusterOptionMissingDot(t *testing.T) {
	if _, _, _, err := ParseClusterOption("ovirtnodatabase=True"); err == nil {
		t.Fatal("expected error for missing '.'")
	}
}

func TestParseClusterOptionValueContainsEquals(t *testing.T) {
	profile, option, value, err := ParseClusterOption("pacemaker.extra=--foo=bar")
	if err != nil {
		t.Fatal(err)
	}
	if profile != "pacemaker" || option != "extra" || value != "--foo=bar" {
		t.Fatalf("got (%q, %q, %q)", profile, option, value)
	}
}
