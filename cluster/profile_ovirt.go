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
	Register("ovirt", func() Profile {
		return &ovirtProfile{
			options: []*Option{
				{Name: "no-database", Description: "skip collecting the engine database dump", Type: TypeBool, Default: "false", Value: "false"},
			},
		}
	})
}

// ovirtProfile recognizes an oVirt/RHV engine host by the presence of the
// ovirt-engine package and enumerates hosts known to the engine.
type ovirtProfile struct {
	options []*Option
}

func (p *ovirtProfile) ShortName() string  { return "ovirt" }
func (p *ovirtProfile) HumanName() string  { return "oVirt / RHV engine" }
func (p *ovirtProfile) Parent() string     { return "" }
func (p *ovirtProfile) Options() []*Option { return p.options }

func (p *ovirtProfile) noDatabase() bool {
	for _, o := range p.options {
		if o.Name == "no-database" {
			return o.Bool()
		}
	}
	return false
}

func (p *ovirtProfile) AppliesHere(primary PrimaryNode) bool {
	_, exitCode, err := primary.Run("rpm -q ovirt-engine", 30)
	return err == nil && exitCode == 0
}

func (p *ovirtProfile) GetNodes(primary PrimaryNode) ([]string, error) {
	stdout, exitCode, err := primary.Run(
		`engine-config -g FQDN 2>/dev/null; su - postgres -c "psql -d engine -Atc \"select vds_name from vds\"" 2>/dev/null`, 60)
	if err != nil || exitCode != 0 {
		return nil, nil
	}
	var nodes []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			nodes = append(nodes, line)
		}
	}
	return nodes, nil
}

func (p *ovirtProfile) ModifyCommand(base string) string {
	if p.noDatabase() {
		return base + " -k ovirt.no-database=True"
	}
	return base
}

// RunExtraCmd takes an engine database backup on the primary, unless the
// no-database option opted out, and returns its path for retrieval.
func (p *ovirtProfile) RunExtraCmd(primary PrimaryNode) ([]string, error) {
	if p.noDatabase() {
		return nil, nil
	}
	const backupPath = "/tmp/sos-collector-engine-backup.bak"
	_, exitCode, err := primary.Run(
		"engine-backup --mode=backup --scope=db --file="+backupPath+" --log=/tmp/sos-collector-engine-backup.log", 300)
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return nil, nil
	}
	return []string{backupPath}, nil
}
