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
	"strings"
	"testing"

	shellquote "github.com/kballard/go-shellquote"
)

func TestBuildAgentCommandDefaultFlags(t *testing.T) {
	cmd := BuildAgentCommand(Options{})
	if !strings.HasPrefix(cmd, "sosreport --batch") {
		t.Fatalf("expected command to start with sosreport --batch, got %q", cmd)
	}
}

func TestBuildAgentCommandIncludesEveryFlag(t *testing.T) {
	opts := Options{
		CaseID:        "12345",
		AllOptions:    true,
		AllLogs:       true,
		Verify:        true,
		LogSizeMiB:    100,
		Sysroot:       "/sysroot",
		Chroot:        "always",
		Compression:   "xz",
		EnablePlugins: []string{"networking"},
		SkipPlugins:   []string{"kernel"},
		OnlyPlugins:   []string{"process"},
		PluginOpts:    []string{"networking.timeout=10"},
	}
	cmd := BuildAgentCommand(opts)
	for _, want := range []string{
		"--case-id=12345", "--alloptions", "--all-logs", "--verify",
		"--log-size=100", "--sysroot=/sysroot", "--chroot=always", "-z xz",
		"-e networking", "-n kernel", "-o process", "-k networking.timeout=10",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("expected command to contain %q, got %q", want, cmd)
		}
	}
}

func TestBuildAgentCommandSosCmdOverride(t *testing.T) {
	cmd := BuildAgentCommand(Options{SosCmd: "--quiet --tmp-dir=/data", AllOptions: true})
	want := "sosreport --batch " + shellquote.Join("--quiet --tmp-dir=/data")
	if cmd != want {
		t.Fatalf("expected shell-quoted override to replace flags, got %q, want %q", cmd, want)
	}
}

func TestBuildAgentCommandRejectsDangerousSosCmd(t *testing.T) {
	cmd := BuildAgentCommand(Options{SosCmd: "--quiet; rm -rf /", AllOptions: true})
	if strings.Contains(cmd, "rm -rf") {
		t.Fatalf("expected dangerous override to be rejected, got %q", cmd)
	}
	if !strings.Contains(cmd, "--alloptions") {
		t.Fatalf("expected fallback to flag-by-flag construction, got %q", cmd)
	}
}

func TestApplyProfileRewriteNilIsNoop(t *testing.T) {
	base := "sosreport --batch"
	if got := ApplyProfileRewrite(base, nil); got != base {
		t.Fatalf("expected unchanged command, got %q", got)
	}
}

func TestApplyProfileRewriteAppends(t *testing.T) {
	base := "sosreport --batch"
	got := ApplyProfileRewrite(base, func(s string) string { return s + " -k ovirt.no-database=True" })
	if got != base+" -k ovirt.no-database=True" {
		t.Fatalf("unexpected rewritten command: %q", got)
	}
}
