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

// Package cluster implements the pluggable cluster-profile strategy
// system: a registry of named profiles, each able to recognize its class
// of distributed installation against a connected primary node, enumerate
// its member nodes, and optionally rewrite the agent command line.
package cluster

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/sos-collector", "cluster")

// OptionType is the declared type of a cluster option, used to coerce the
// raw string value supplied via -c profile.option=value.
type OptionType int

const (
	TypeString OptionType = iota
	TypeBool
	TypeInt
)

// Option is one declared, profile-owned option, carrying its current
// value after any -c override has been coerced and applied.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Default     string
	Value       string
}

// Bool returns the option's current value coerced to bool. Callers only
// use this on options declared with Type == TypeBool.
func (o *Option) Bool() bool {
	v := strings.ToLower(o.Value)
	return v == "true" || v == "on"
}

// Int returns the option's current value coerced to int. Callers only
// use this on options declared with Type == TypeInt.
func (o *Option) Int() int {
	n, _ := strconv.Atoi(o.Value)
	return n
}

// coerce validates and applies raw against o's declared type, per the
// coercion rules: bool accepts {true, on, false, off} case-insensitively,
// int is a strict base-10 parse, anything else is a fatal error.
func (o *Option) coerce(raw string) error {
	switch o.Type {
	case TypeBool:
		switch strings.ToLower(raw) {
		case "true", "on":
			o.Value = "true"
		case "false", "off":
			o.Value = "false"
		default:
			return fmt.Errorf("option %s: %q is not a valid bool (true/on/false/off)", o.Name, raw)
		}
	case TypeInt:
		if _, err := strconv.Atoi(raw); err != nil {
			return fmt.Errorf("option %s: %q is not a valid integer", o.Name, raw)
		}
		o.Value = raw
	default:
		o.Value = raw
	}
	return nil
}

// PrimaryNode is the narrow view of a node.Session a profile needs to run
// discovery and extra commands against the primary node, kept as an
// interface here so this package never imports node directly (profiles
// never own a transport, only observe one).
type PrimaryNode interface {
	Run(command string, timeoutSeconds int) (stdout string, exitCode int, err error)
	Hostname() string
	Address() string
}

// Profile is the strategy object contract: applies_here/get_nodes/
// modify_command/declared options, expressed as a Go interface rather
// than class inheritance so the layering relation stays an explicit,
// decidable field instead of introspection.
type Profile interface {
	// ShortName is the -c/--cluster-type identifier, e.g. "ovirt".
	ShortName() string
	// HumanName is a one-line description for -l/--list-options.
	HumanName() string
	// Parent is the short name of the profile this one layers over, or
	// "" if this is a base profile.
	Parent() string
	// Options returns the declared options for this profile, in
	// declaration order. Each call returns the same backing Option
	// values so coercion via SetOption is visible to later calls.
	Options() []*Option
	// AppliesHere reports whether primary belongs to this profile's
	// class of cluster. Never called with a primary other than the one
	// the profile instance was constructed against.
	AppliesHere(primary PrimaryNode) bool
	// GetNodes enumerates member node identifiers. Only called after
	// AppliesHere returned true, or after explicit --cluster-type
	// selection.
	GetNodes(primary PrimaryNode) ([]string, error)
	// ModifyCommand appends profile-specific flags to the agent command
	// line, returning the (possibly unchanged) result.
	ModifyCommand(base string) string
	// RunExtraCmd optionally runs a profile-specific command against the
	// primary after per-node collection completes, returning remote file
	// paths the driver should retrieve from the primary in addition to
	// each node's own agent output. Profiles with nothing extra to
	// collect return (nil, nil).
	RunExtraCmd(primary PrimaryNode) ([]string, error)
}

// SetOption finds the named option on p and coerces raw into it. Unknown
// option names are a fatal error per the coercion rules.
func SetOption(p Profile, name, raw string) error {
	for _, o := range p.Options() {
		if o.Name == name {
			return o.coerce(raw)
		}
	}
	return fmt.Errorf("unknown option %q for cluster profile %q", name, p.ShortName())
}
