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

// Package driver wires together the credential broker, cluster-profile
// registry, node-set resolver, scheduler, and archive assembler into the
// interactive preamble and final run the command line describes.
package driver

import "strings"

// Options is the full command-line surface, populated directly from
// cobra/pflag bindings in command.go.
type Options struct {
	AllOptions    bool
	AllLogs       bool
	BecomeRoot    bool
	Batch         bool
	CaseID        string
	ClusterType   string
	ClusterOpts   []string // repeatable -c cluster.option=value
	Chroot        string   // auto|always|never
	Sysroot       string
	EnablePlugins []string // repeatable -e plugin
	Group         string
	SaveGroup     string
	Image         string
	SSHKeyPath    string
	InsecureSudo  bool
	PluginOpts    []string // repeatable -k plugin.opt=value
	ListOptions   bool
	Label         string
	LogSizeMiB    int
	SkipPlugins   []string // repeatable -n plugin
	Nodes         []string // repeatable --nodes
	NoPkgCheck    bool
	NoLocal       bool
	Primary       string // --master
	OnlyPlugins   []string // repeatable -o plugin
	SSHPort       int
	Password      bool
	PasswordPerNode bool
	Preset        string
	SosCmd        string
	SSHUser       string
	TimeoutSec    int
	Verify        bool
	Compression   string // auto|gzip|bzip2|xz
	Jobs          int    // --jobs, degree of connect/collect parallelism
}

// DefaultTimeoutSec is the per-node agent timeout when --timeout is unset.
const DefaultTimeoutSec = 600

// DefaultJobs is the connect/collect worker pool size when --jobs is unset
// or non-positive.
const DefaultJobs = 4

// ParseOptionString splits a comma-separated option list, trimming
// surrounding whitespace from the whole string and from each element.
// Empty input (after trimming) yields an empty, non-nil-shaped slice.
func ParseOptionString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// ParseClusterOption splits a `-c profile.option=value` argument into its
// three parts. Malformed input (missing '.' or '=') is a pre-flight fatal
// per spec.md §7.
func ParseClusterOption(raw string) (profile, option, value string, err error) {
	eq := strings.IndexByte(raw, '=')
	if eq < 0 {
		return "", "", "", newFatalf("malformed cluster option %q: missing '='", raw)
	}
	left, value := raw[:eq], raw[eq+1:]
	dot := strings.IndexByte(left, '.')
	if dot < 0 {
		return "", "", "", newFatalf("malformed cluster option %q: missing '.'", raw)
	}
	return left[:dot], left[dot+1:], value, nil
}
