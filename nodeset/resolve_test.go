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

package nodeset

import (
	"reflect"
	"testing"
)

func TestTokenizeSimpleCommaList(t *testing.T) {
	got := tokenize("host1,host2,host3")
	want := []string{"host1", "host2", "host3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizePreservesBracketedCommas(t *testing.T) {
	got := tokenize("node[1,2,3].example,other")
	want := []string{"node[1,2,3].example", "other"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestIsLiteralClassification(t *testing.T) {
	if !isLiteral("host1.example.com") {
		t.Fatal("expected plain hostname to be a literal")
	}
	if isLiteral("host*.example.com") {
		t.Fatal("expected glob to be classified as a pattern")
	}
	if isLiteral("node[1-3]") {
		t.Fatal("expected bracket expression to be classified as a pattern")
	}
}

func TestGlobToAnchoredRegexMatches(t *testing.T) {
	re := globToAnchoredRegex("b.*")
	if !matchesAny("b.example", []string{"b.*"}) {
		t.Fatalf("expected b.* to match b.example (pattern %s)", re)
	}
	if matchesAny("c.example", []string{"b.*"}) {
		t.Fatal("expected b.* not to match c.example")
	}
}

func TestResolveNoProfileExplicitNodes(t *testing.T) {
	res, err := Resolve(Inputs{
		RawNodeArgs:     []string{"host1,host2"},
		ExplicitPrimary: "primary.example",
		NoLocal:         true,
		LocalHostname:   "driver.example",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"host1", "host2"}
	if !reflect.DeepEqual(res.Nodes, want) {
		t.Fatalf("got %v, want %v", res.Nodes, want)
	}
}

func TestResolveProfileEnumerationWithFilter(t *testing.T) {
	res, err := Resolve(Inputs{
		RawNodeArgs: []string{"b.*"},
		Enumerated:  []string{"a.example", "b.example", "c.example"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b.example"}
	if !reflect.DeepEqual(res.Nodes, want) {
		t.Fatalf("got %v, want %v", res.Nodes, want)
	}
}

func TestResolveRemovesLocalWhenNoLocalSet(t *testing.T) {
	res, err := Resolve(Inputs{
		Enumerated:    []string{"driver.example", "a.example"},
		LocalHostname: "driver.example",
		LocalAddrs:    []string{"10.0.0.1"},
		NoLocal:       true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range res.Nodes {
		if n == "driver.example" || n == "driver" {
			t.Fatalf("expected local hostname stripped, got %v", res.Nodes)
		}
	}
}

func TestResolveAlwaysRemovesExplicitPrimary(t *testing.T) {
	res, err := Resolve(Inputs{
		Enumerated:      []string{"primary.example", "a.example"},
		ExplicitPrimary: "primary.example",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range res.Nodes {
		if n == "primary.example" {
			t.Fatal("expected explicit primary always removed")
		}
	}
}

func TestResolveDedupesAndDropsEmpty(t *testing.T) {
	res, err := Resolve(Inputs{
		RawNodeArgs: []string{"host1,host1,,host2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"host1", "host2"}
	if !reflect.DeepEqual(res.Nodes, want) {
		t.Fatalf("got %v, want %v", res.Nodes, want)
	}
}

func TestResolveHostnameFieldWidth(t *testing.T) {
	res, err := Resolve(Inputs{
		RawNodeArgs:     []string{"a,much-longer-hostname.example"},
		ExplicitPrimary: "p",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.HostnameFieldWidth != len("much-longer-hostname.example") {
		t.Fatalf("unexpected field width %d", res.HostnameFieldWidth)
	}
}

func TestValidateGlobRejectsUnclosedClass(t *testing.T) {
	if err := ValidateGlob("node[1-3"); err == nil {
		t.Fatal("expected error for unclosed character class")
	}
}
