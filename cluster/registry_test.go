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

package cluster

import "testing"

// fakePrimary answers Run per a fixed lookup table keyed by the exact
// command string, for deterministic AppliesHere/GetNodes tests.
type fakePrimary struct {
	responses map[string]fakeResponse
}

type fakeResponse struct {
	stdout   string
	exitCode int
}

func (f *fakePrimary) Run(command string, timeoutSeconds int) (string, int, error) {
	if r, ok := f.responses[command]; ok {
		return r.stdout, r.exitCode, nil
	}
	return "", 1, nil
}
func (f *fakePrimary) Hostname() string { return "primary" }
func (f *fakePrimary) Address() string  { return "primary" }

func TestByNameResolvesJBONAlias(t *testing.T) {
	p, err := ByName("jbon")
	if err != nil {
		t.Fatal(err)
	}
	if p.ShortName() != NoneProfileName {
		t.Fatalf("expected none profile, got %s", p.ShortName())
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown cluster type")
	}
}

func TestNoneProfileNeverAutoMatches(t *testing.T) {
	none, _ := ByName("none")
	if none.AppliesHere(&fakePrimary{}) {
		t.Fatal("none profile must never auto-match")
	}
}

func TestDetectFallsBackToNoneWhenNothingMatches(t *testing.T) {
	p, err := Detect(&fakePrimary{responses: map[string]fakeResponse{}})
	if err != nil {
		t.Fatal(err)
	}
	if p.ShortName() != NoneProfileName {
		t.Fatalf("expected fallback to none, got %s", p.ShortName())
	}
}

func TestDetectLayeringPrefersDerivedProfile(t *testing.T) {
	primary := &fakePrimary{responses: map[string]fakeResponse{
		"pcs status >/dev/null 2>&1": {exitCode: 0},
		"rpm -q pacemaker --whatprovides >/dev/null 2>&1 && test -f /etc/yum.repos.d/rhel-ha.repo": {exitCode: 0},
	}}
	p, err := Detect(primary)
	if err != nil {
		t.Fatal(err)
	}
	if p.ShortName() != "pacemaker-rhel-ha" {
		t.Fatalf("expected layered profile to win, got %s", p.ShortName())
	}
}

func TestDetectBaseProfileWithoutDerivedMatch(t *testing.T) {
	primary := &fakePrimary{responses: map[string]fakeResponse{
		"pcs status >/dev/null 2>&1": {exitCode: 0},
	}}
	p, err := Detect(primary)
	if err != nil {
		t.Fatal(err)
	}
	if p.ShortName() != "pacemaker" {
		t.Fatalf("expected base pacemaker profile, got %s", p.ShortName())
	}
}

func TestSetOptionCoercesBool(t *testing.T) {
	p, _ := ByName("ovirt")
	if err := SetOption(p, "no-database", "False"); err != nil {
		t.Fatal(err)
	}
	for _, o := range p.Options() {
		if o.Name == "no-database" && o.Bool() {
			t.Fatalf("expected no-database coerced to false, got %q", o.Value)
		}
	}
}

func TestSetOptionRejectsInvalidBool(t *testing.T) {
	p, _ := ByName("ovirt")
	if err := SetOption(p, "no-database", "maybe"); err == nil {
		t.Fatal("expected fatal error for invalid bool option value")
	}
}

func TestSetOptionUnknownNameIsFatal(t *testing.T) {
	p, _ := ByName("ovirt")
	if err := SetOption(p, "does-not-exist", "x"); err == nil {
		t.Fatal("expected fatal error for unknown option name")
	}
}

func TestPacemakerGetNodesParsesOnlineOffline(t *testing.T) {
	p, _ := ByName("pacemaker")
	primary := &fakePrimary{responses: map[string]fakeResponse{
		"pcs status nodes 2>/dev/null": {
			stdout:   "Pacemaker Nodes:\n Online: node-a node-b\n Offline: node-c\n",
			exitCode: 0,
		},
	}}
	nodes, err := p.GetNodes(primary)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || nodes[0] != "node-a" || nodes[1] != "node-b" {
		t.Fatalf("expected [node-a node-b], got %v", nodes)
	}
}

func TestPacemakerGetNodesIncludesOfflineWhenRequested(t *testing.T) {
	p, _ := ByName("pacemaker")
	if err := SetOption(p, "offline", "true"); err != nil {
		t.Fatal(err)
	}
	primary := &fakePrimary{responses: map[string]fakeResponse{
		"pcs status nodes 2>/dev/null": {
			stdout:   "Pacemaker Nodes:\n Online: node-a\n Offline: node-c\n",
			exitCode: 0,
		},
	}}
	nodes, err := p.GetNodes(primary)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes with offline included, got %v", nodes)
	}
}
