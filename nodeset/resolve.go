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

// Package nodeset reconciles node identifiers gathered from a cluster
// profile's enumeration, the user's own --nodes tokens (literal hostnames
// or shell-style patterns), and the driver's local identity into the
// final, deduplicated set of nodes a run will connect to.
package nodeset

import (
	"fmt"
	"regexp"
	"strings"
)

// Inputs bundles everything Resolve needs, mirroring the commons record
// called out for this reconciliation step.
type Inputs struct {
	// RawNodeArgs are the raw --nodes option values, each potentially a
	// comma-joined sequence where commas may sit inside a regex
	// character class.
	RawNodeArgs []string
	// Enumerated is the profile's enumerated member list, or nil if no
	// profile enumeration ran.
	Enumerated []string
	// LocalHostname is the driver's own hostname (short or full).
	LocalHostname string
	// LocalAddrs are every local address the driver itself answers to.
	LocalAddrs []string
	// ExplicitPrimary is the node already collected via its own
	// dedicated session, always excluded from the set.
	ExplicitPrimary string
	// NoLocal, when set, also strips the local hostname/short-hostname
	// and every local address from the resolved set.
	NoLocal bool
}

// Result is the reconciled node set plus the UI-facing field width.
type Result struct {
	Nodes               []string
	HostnameFieldWidth int
}

// Resolve implements the node-set reconciliation algorithm: tokenize,
// classify, enumerate, filter, union, remove, dedup.
func Resolve(in Inputs) (Result, error) {
	tokens := tokenizeAll(in.RawNodeArgs)

	var literals, patterns []string
	for _, t := range tokens {
		if isLiteral(t) {
			literals = append(literals, t)
		} else {
			patterns = append(patterns, t)
		}
	}

	var nodes []string
	if len(in.Enumerated) > 0 {
		nodes = append(nodes, in.Enumerated...)
	} else {
		nodes = append(nodes, literals...)
	}

	if len(patterns) > 0 {
		filtered := nodes[:0:0]
		for _, n := range nodes {
			if matchesAny(n, patterns) {
				filtered = append(filtered, n)
			}
		}
		nodes = filtered
	}

	nodes = unionMissing(nodes, literals)

	nodes = removeLocalAndPrimary(nodes, in)

	nodes = dedupNonEmpty(nodes)

	width := len(in.ExplicitPrimary)
	for _, n := range nodes {
		if len(n) > width {
			width = len(n)
		}
	}

	return Result{Nodes: nodes, HostnameFieldWidth: width}, nil
}

// tokenizeAll splits every raw argument on commas that are not part of an
// unclosed regex character class, per step 1 of the algorithm: a comma
// only separates tokens when the prefix up to it is itself a compilable
// regex and does not contain an unbalanced '['.
func tokenizeAll(raw []string) []string {
	var out []string
	for _, arg := range raw {
		out = append(out, tokenize(arg)...)
	}
	return out
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	var tokens []string
	start := 0
	for i, r := range s {
		if r != ',' {
			continue
		}
		candidate := s[start:i]
		if _, err := regexp.Compile(candidate); err != nil {
			continue
		}
		if strings.Contains(candidate, "[") && !strings.Contains(candidate, "]") {
			continue
		}
		tokens = append(tokens, strings.TrimPrefix(candidate, ","))
		start = i + 1
	}
	if start <= len(s) {
		tail := s[start:]
		if tail != "" {
			tokens = append(tokens, tail)
		}
	}
	return tokens
}

// regexMetachars are the characters whose presence classifies a token as
// a pattern rather than a literal hostname/address.
const regexMetachars = `*\?()/[]`

func isLiteral(token string) bool {
	return !strings.ContainsAny(token, regexMetachars)
}

// matchesAny reports whether node matches any of patterns, each
// translated from a shell-style glob to an anchored regex.
func matchesAny(node string, patterns []string) bool {
	for _, p := range patterns {
		re, err := regexp.Compile(globToAnchoredRegex(p))
		if err != nil {
			continue
		}
		if re.MatchString(node) {
			return true
		}
	}
	return false
}

// globToAnchoredRegex translates a shell glob (*, ?, character classes)
// into an anchored regular expression, the same translation
// fnmatch.translate performs.
func globToAnchoredRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(string(c)))
			} else {
				b.WriteString(pattern[i : i+end+1])
				i += end
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
		i++
	}
	b.WriteString("$")
	return b.String()
}

func unionMissing(nodes, literals []string) []string {
	present := map[string]bool{}
	for _, n := range nodes {
		present[n] = true
	}
	out := append([]string(nil), nodes...)
	for _, l := range literals {
		if !present[l] {
			out = append(out, l)
			present[l] = true
		}
	}
	return out
}

func removeLocalAndPrimary(nodes []string, in Inputs) []string {
	shortHost := strings.SplitN(in.LocalHostname, ".", 2)[0]

	remove := map[string]bool{}
	if in.ExplicitPrimary != "" {
		remove[in.ExplicitPrimary] = true
	}
	if in.NoLocal {
		if in.LocalHostname != "" {
			remove[in.LocalHostname] = true
			remove[shortHost] = true
		}
		for _, a := range in.LocalAddrs {
			remove[a] = true
		}
	}

	out := nodes[:0:0]
	for _, n := range nodes {
		if remove[n] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func dedupNonEmpty(nodes []string) []string {
	seen := map[string]bool{}
	out := nodes[:0:0]
	for _, n := range nodes {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ValidateGlob reports a descriptive error if pattern has an unbalanced
// character class or cannot be compiled as a glob-derived regex, for
// early --nodes validation in the driver preamble.
func ValidateGlob(pattern string) error {
	if strings.Contains(pattern, "[") && !strings.Contains(pattern, "]") {
		return fmt.Errorf("invalid node pattern %q: unclosed character class", pattern)
	}
	if _, err := regexp.Compile(globToAnchoredRegex(pattern)); err != nil {
		return fmt.Errorf("invalid node pattern %q: %w", pattern, err)
	}
	return nil
}
