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

// Package credentials resolves SSH, sudo, and root passwords exactly once
// during the driver's interactive preamble and hands them to the scheduler
// as an immutable value. Workers never prompt.
package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coreos/pkg/capnslog"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/sos-collector", "credentials")

// Prompter reads a password from some interactive source without echoing
// it. The default implementation reads from the controlling terminal;
// tests substitute a fake.
type Prompter func(prompt string) (string, error)

// Set is the immutable credential bundle produced by Resolve and carried
// into every scheduler worker. Per-node passwords are read-only once
// populated.
type Set struct {
	SSHUser      string
	SSHPort      int
	SSHKeyPath   string
	SSHPassword  string
	SudoPassword string
	RootPassword string

	// PerNode holds one SSH password per node identifier when
	// PasswordPerNode was requested; resolution is deferred to the
	// scheduler, which calls Prompt lazily for each node.
	PerNode  bool
	perNode  *perNodeCache
	prompt   Prompter
}

// perNodeCache guards the lazily-populated per-node password cache. It is
// held behind a pointer in Set so that cloning a Set (ForNode) copies the
// pointer, never the mutex itself.
type perNodeCache struct {
	mu    sync.Mutex
	cache map[string]string
}

// Options carries the flags that steer the decision matrix in spec.md §4.5.
type Options struct {
	SSHUser        string
	SSHPort        int
	SSHKeyPath     string
	Password       bool
	PasswordPerNode bool
	BecomeRoot     bool
	InsecureSudo   bool
}

// Resolve implements the decision matrix from spec.md §4.5. It prompts at
// most once per credential kind (except PasswordPerNode, which defers
// per-node prompts to the scheduler).
func Resolve(opts Options, prompt Prompter) (*Set, error) {
	if prompt == nil {
		prompt = ReadPassword
	}

	cs := &Set{
		SSHUser:    opts.SSHUser,
		SSHPort:    opts.SSHPort,
		SSHKeyPath: opts.SSHKeyPath,
		PerNode:    opts.PasswordPerNode,
		perNode:    &perNodeCache{cache: map[string]string{}},
		prompt:     prompt,
	}

	nonRoot := opts.SSHUser != "" && opts.SSHUser != "root"

	if opts.PasswordPerNode {
		// Deferred to the scheduler via PromptForNode; become_root is
		// still resolved up front since it is a single shared password.
		if err := resolveBecomeRoot(cs, opts, nonRoot, prompt); err != nil {
			return nil, err
		}
		return cs, nil
	}

	switch {
	case !opts.Password && !nonRoot:
		// root over ssh, no password flag: nothing to prompt for.
	case !opts.Password && nonRoot && !opts.InsecureSudo:
		pw, err := prompt("sudo password: ")
		if err != nil {
			return nil, errors.Wrap(err, "reading sudo password")
		}
		cs.SudoPassword = pw
	case opts.Password && !nonRoot:
		pw, err := prompt("ssh password: ")
		if err != nil {
			return nil, errors.Wrap(err, "reading ssh password")
		}
		cs.SSHPassword = pw
	case opts.Password && nonRoot:
		pw, err := prompt("ssh password: ")
		if err != nil {
			return nil, errors.Wrap(err, "reading ssh password")
		}
		cs.SSHPassword = pw
		cs.SudoPassword = pw
	}

	if err := resolveBecomeRoot(cs, opts, nonRoot, prompt); err != nil {
		return nil, err
	}

	return cs, nil
}

func resolveBecomeRoot(cs *Set, opts Options, nonRoot bool, prompt Prompter) error {
	if !opts.BecomeRoot {
		return nil
	}
	if !nonRoot {
		// ssh user is already root: become_root is a no-op, silently
		// cleared per spec.md §4.5.
		return nil
	}
	pw, err := prompt("root password: ")
	if err != nil {
		return errors.Wrap(err, "reading root password")
	}
	cs.RootPassword = pw
	return nil
}

// PromptForNode returns the ssh password to use for a specific node when
// PasswordPerNode was requested, prompting once and caching the result.
// It is the only credential-broker entry point safe to call from worker
// context, since it is explicitly a per-node deferred prompt rather than a
// re-prompt of a value Resolve already settled.
func (s *Set) PromptForNode(node string) (string, error) {
	if !s.PerNode {
		return s.SSHPassword, nil
	}

	s.perNode.mu.Lock()
	defer s.perNode.mu.Unlock()

	if pw, ok := s.perNode.cache[node]; ok {
		return pw, nil
	}
	pw, err := s.prompt(fmt.Sprintf("ssh password for %s: ", node))
	if err != nil {
		return "", errors.Wrapf(err, "reading password for %s", node)
	}
	s.perNode.cache[node] = pw
	return pw, nil
}

// ForNode returns the credential set a single node's session should use:
// itself unchanged unless PerNode is set, in which case it returns a copy
// with SSHPassword resolved via PromptForNode for that node. Called once
// per node from the connect phase, never from more than one worker at a
// time for the same node.
func (s *Set) ForNode(node string) (*Set, error) {
	if !s.PerNode {
		return s, nil
	}
	pw, err := s.PromptForNode(node)
	if err != nil {
		return nil, err
	}
	clone := *s
	clone.SSHPassword = pw
	return &clone, nil
}

// ReadPassword is the default Prompter: it reads from the controlling
// terminal without echoing input, matching the no-echo requirement in
// spec.md §4.1/§4.5.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(os.Stdin)
}

func readLine(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}
