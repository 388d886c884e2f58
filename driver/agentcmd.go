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
	"strconv"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// dangerousShellChars are rejected in a raw --sos-cmd override, since the
// override is otherwise shell-quoted and passed to the remote shell
// verbatim; accepting these would let the override escape its quoting.
const dangerousShellChars = "&|><;"

// BuildAgentCommand constructs the single shell-quoted command line run
// on every node, starting from `sosreport --batch`. A user-supplied raw
// override replaces the rest of the flags unless it contains shell
// metacharacters, in which case it is rejected with a warning and the
// normal flag-by-flag path is used instead.
func BuildAgentCommand(opts Options) string {
	if opts.SosCmd != "" {
		if strings.ContainsAny(opts.SosCmd, dangerousShellChars) {
			plog.Warningf("ignoring --sos-cmd override containing shell metacharacters: %q", opts.SosCmd)
		} else {
			return "sosreport --batch " + shellquote.Join(opts.SosCmd)
		}
	}

	parts := []string{"sosreport", "--batch"}

	if opts.CaseID != "" {
		parts = append(parts, "--case-id="+shellquote.Join(opts.CaseID))
	}
	if opts.AllOptions {
		parts = append(parts, "--alloptions")
	}
	if opts.AllLogs {
		parts = append(parts, "--all-logs")
	}
	if opts.Verify {
		parts = append(parts, "--verify")
	}
	if opts.LogSizeMiB > 0 {
		parts = append(parts, "--log-size="+strconv.Itoa(opts.LogSizeMiB))
	}
	if opts.Sysroot != "" {
		parts = append(parts, "--sysroot="+shellquote.Join(opts.Sysroot))
	}
	if opts.Chroot != "" {
		parts = append(parts, "--chroot="+shellquote.Join(opts.Chroot))
	}
	if opts.Compression != "" {
		parts = append(parts, "-z", shellquote.Join(opts.Compression))
	}
	for _, p := range opts.EnablePlugins {
		parts = append(parts, "-e", shellquote.Join(p))
	}
	for _, p := range opts.SkipPlugins {
		parts = append(parts, "-n", shellquote.Join(p))
	}
	for _, p := range opts.OnlyPlugins {
		parts = append(parts, "-o", shellquote.Join(p))
	}
	for _, kv := range opts.PluginOpts {
		parts = append(parts, "-k", shellquote.Join(kv))
	}

	return strings.Join(parts, " ")
}

// ApplyProfileRewrite lets the selected cluster profile append its own
// flags to the otherwise-built command line.
func ApplyProfileRewrite(base string, modify func(string) string) string {
	if modify == nil {
		return base
	}
	return modify(base)
}
