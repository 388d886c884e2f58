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

import (
	"strings"
)

func init() {
	Register("pacemaker", func() Profile {
		return &pacemakerProfile{
			options: []*Option{
				{Name: "offline", Description: "include nodes pacemaker reports offline", Type: TypeBool, Default: "false", Value: "false"},
			},
		}
	})
	Register("pacemaker-rhel-ha", func() Profile {
		return &pacemakerRHELProfile{pacemakerProfile{
			options: []*Option{
				{Name: "offline", Description: "include nodes pacemaker reports offline", Type: TypeBool, Default: "false", Value: "false"},
			},
		}}
	})
}

// pacemakerRHELProfile layers over pacemakerProfile: any host a plain
// pacemaker profile matches also matches this one when it additionally
// carries the RHEL HA Add-On repo marker, so per the layering rule this
// more specific profile supersedes the base "pacemaker" one.
type pacemakerRHELProfile struct {
	pacemakerProfile
}

func (p *pacemakerRHELProfile) ShortName() string { return "pacemaker-rhel-ha" }
func (p *pacemakerRHELProfile) HumanName() string {
	return "Pacemaker/Corosync HA cluster (RHEL HA Add-On)"
}
func (p *pacemakerRHELProfile) Parent() string { return "pacemaker" }

func (p *pacemakerRHELProfile) AppliesHere(primary PrimaryNode) bool {
	if !p.pacemakerProfile.AppliesHere(primary) {
		return false
	}
	_, exitCode, err := primary.Run("rpm -q pacemaker --whatprovides >/dev/null 2>&1 && test -f /etc/yum.repos.d/rhel-ha.repo", 30)
	return err == nil && exitCode == 0
}

// pacemakerProfile recognizes a pacemaker/corosync cluster by probing for
// a running pcs daemon and enumerates nodes from `pcs status nodes`.
type pacemakerProfile struct {
	options []*Option
}

func (p *pacemakerProfile) ShortName() string  { return "pacemaker" }
func (p *pacemakerProfile) HumanName() string  { return "Pacemaker/Corosync HA cluster" }
func (p *pacemakerProfile) Parent() string     { return "" }
func (p *pacemakerProfile) Options() []*Option { return p.options }

func (p *pacemakerProfile) includeOffline() bool {
	for _, o := range p.options {
		if o.Name == "offline" {
			return o.Bool()
		}
	}
	return false
}

func (p *pacemakerProfile) AppliesHere(primary PrimaryNode) bool {
	_, exitCode, err := primary.Run("pcs status >/dev/null 2>&1", 30)
	return err == nil && exitCode == 0
}

func (p *pacemakerProfile) GetNodes(primary PrimaryNode) ([]string, error) {
	stdout, exitCode, err := primary.Run("pcs status nodes 2>/dev/null", 30)
	if err != nil || exitCode != 0 {
		return nil, nil
	}
	return parsePcsStatusNodes(stdout, p.includeOffline()), nil
}

func (p *pacemakerProfile) ModifyCommand(base string) string { return base }

func (p *pacemakerProfile) RunExtraCmd(primary PrimaryNode) ([]string, error) { return nil, nil }

// parsePcsStatusNodes parses the two "Online:"/"Offline:" lines emitted
// by `pcs status nodes`, e.g.:
//
//	Pacemaker Nodes:
//	 Online: node-a node-b
//	 Offline: node-c
func parsePcsStatusNodes(stdout string, includeOffline bool) []string {
	var nodes []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Online:"):
			nodes = append(nodes, strings.Fields(strings.TrimPrefix(line, "Online:"))...)
		case strings.HasPrefix(line, "Offline:") && includeOffline:
			nodes = append(nodes, strings.Fields(strings.TrimPrefix(line, "Offline:"))...)
		}
	}
	return nodes
}
