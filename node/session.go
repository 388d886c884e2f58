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

// Package node implements a single, long-lived, multiplexed SSH control
// channel to one remote host (or a local-exec shortcut for "localhost"),
// along with the privilege-escalation state machine and artifact
// retrieval used to run the diagnostic agent on it.
package node

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coreos/pkg/capnslog"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/coreos/sos-collector/credentials"
	"github.com/coreos/sos-collector/network"
	"github.com/coreos/sos-collector/util"
)

// defaultConnectWait is how long Connect retries a dial before giving up,
// absorbing the reboot/slow-network blips a single-shot dial would surface
// as a hard per-node failure.
const defaultConnectWait = 30 * time.Second

// connectRetryDelay is the pause between dial attempts while polling for
// reachability.
const connectRetryDelay = 2 * time.Second

var plog = capnslog.NewPackageLogger("github.com/coreos/sos-collector", "node")

// ConnState is the connection lifecycle of a Session.
type ConnState int

const (
	Unconnected ConnState = iota
	Connected
	Closed
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// PrivState is the privilege-escalation state of a Session, per the state
// machine in spec.md §4.1.
type PrivState int

const (
	Unprivileged PrivState = iota
	Sudo
	Root
)

func (p PrivState) String() string {
	switch p {
	case Unprivileged:
		return "unprivileged"
	case Sudo:
		return "sudo"
	case Root:
		return "root"
	default:
		return "unknown"
	}
}

// FailureKind classifies a Connect failure for reporting without
// aborting the run (spec.md §4.1 "Failure semantics").
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureDial
	FailureAuth
	FailureRemoteSetup
)

// Result is what run/retrieve operations return to the scheduler.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Session is one control channel to one host. It is created by the
// scheduler, owns its transport, and must be closed exactly once (Close
// is idempotent).
type Session struct {
	Address    string
	LocalExec  bool
	TempDir    string // driver-local directory retrieved files land in

	mu          sync.Mutex
	state       ConnState
	failure     FailureKind
	privilege   PrivState
	hostname    string
	agentVer    string
	remoteTmp   string
	retrieved   []string

	creds *credentials.Set
	conf  Config

	client  *ssh.Client
	local   *localTransport
}

// Config groups the per-session knobs the scheduler/driver supply.
type Config struct {
	User        string
	Port        int
	KeyPath     string
	BecomeRoot  bool
	Insecure    bool // insecure-sudo: no sudo password required
	ConnectWait time.Duration
	Dialer      network.Dialer
}

// New creates a not-yet-connected session for address, using the given
// immutable credential set. For address == "localhost" the session runs
// entirely via local-exec rather than SSH.
func New(address string, creds *credentials.Set, conf Config) *Session {
	s := &Session{
		Address: address,
		creds:   creds,
		conf:    conf,
		state:   Unconnected,
	}
	if address == "localhost" || address == "127.0.0.1" {
		s.LocalExec = true
	}
	return s
}

func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Privilege() PrivState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privilege
}

func (s *Session) Hostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostname
}

func (s *Session) AgentVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentVer
}

func (s *Session) RetrievedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.retrieved))
	copy(out, s.retrieved)
	return out
}

// Connect brings the session to Connected: it dials (or, for localhost,
// switches to local-exec), determines the privilege state from the
// credential set, establishes a remote temp directory, and reads the
// remote hostname and agent version.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unconnected {
		return errors.Errorf("session for %s already in state %s", s.Address, s.state)
	}

	if s.LocalExec {
		s.local = newLocalTransport()
	} else {
		wait := s.conf.ConnectWait
		if wait <= 0 {
			wait = defaultConnectWait
		}

		var client *ssh.Client
		var dialErr error
		err := util.RetryUntilTimeout(wait, connectRetryDelay, func() error {
			client, dialErr = dial(s.Address, s.creds, s.conf)
			return dialErr
		})
		if err != nil {
			s.state = Failed
			s.failure = classifyDialErr(dialErr)
			return errors.Wrapf(dialErr, "connecting to %s", s.Address)
		}
		s.client = client
	}

	s.privilege = resolvePrivilege(s.conf.User, s.conf.BecomeRoot)
	s.state = Connected

	tmp, err := s.runRaw("mktemp -d /tmp/sos-collector.XXXXXX", 30*time.Second, false)
	if err != nil || tmp.ExitCode != 0 {
		s.state = Failed
		s.failure = FailureRemoteSetup
		return errors.Errorf("creating remote temp dir on %s: %v (%s)", s.Address, err, tmp.Stderr)
	}
	s.remoteTmp = strings.TrimSpace(tmp.Stdout)

	host, err := s.runRaw("hostname -f 2>/dev/null || hostname", 30*time.Second, false)
	if err == nil && host.ExitCode == 0 {
		s.hostname = strings.TrimSpace(host.Stdout)
	} else {
		s.hostname = s.Address
	}

	ver, err := s.runRaw("sosreport --version 2>/dev/null | head -n1", 30*time.Second, false)
	if err == nil && ver.ExitCode == 0 {
		s.agentVer = strings.TrimSpace(ver.Stdout)
	}

	return nil
}

// Run executes command on the session, honoring the privilege state when
// usePrivilege is set. It wraps the command in sudo/su as required and
// feeds the escalation password over the session's own stdin channel,
// never embedding it in the command line.
func (s *Session) Run(command string, timeout time.Duration, usePrivilege bool) (RunResult, error) {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return RunResult{}, errors.Errorf("run on %s: not connected (state %s)", s.Address, s.state)
	}
	priv := s.privilege
	creds := s.creds
	s.mu.Unlock()

	cmd, stdin := wrapPrivileged(command, priv, creds)
	return s.runWithStdin(cmd, timeout, stdin)
}

func (s *Session) runRaw(command string, timeout time.Duration, usePrivilege bool) (RunResult, error) {
	return s.runWithStdin(command, timeout, "")
}

// Retrieve copies a single remote file to the session's local temp
// directory, preserving its basename. Missing files are a per-file
// failure, not a session failure.
func (s *Session) Retrieve(remotePath string) (string, error) {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return "", errors.Errorf("retrieve on %s: not connected", s.Address)
	}
	localExec := s.LocalExec
	s.mu.Unlock()

	local := filepath.Join(s.TempDir, filepath.Base(remotePath))

	var err error
	if localExec {
		err = s.local.copyFile(remotePath, local)
	} else {
		err = s.retrieveSSH(remotePath, local)
	}
	if err != nil {
		return "", errors.Wrapf(err, "retrieving %s from %s", remotePath, s.Address)
	}

	s.mu.Lock()
	s.retrieved = append(s.retrieved, local)
	s.mu.Unlock()
	return local, nil
}

// RunAgent runs the diagnostic agent's command line, then retrieves each
// artifact path the agent printed on its final non-empty stdout line
// (spec.md §6's remote-agent contract).
func (s *Session) RunAgent(commandString string, timeout time.Duration) ([]string, error) {
	res, err := s.Run(commandString, timeout, true)
	if err != nil {
		return nil, err
	}
	if res.TimedOut {
		return nil, errors.Errorf("agent on %s timed out after %s", s.Address, timeout)
	}
	if res.ExitCode != 0 {
		plog.Warningf("agent on %s exited %d: %s", s.Address, res.ExitCode, res.Stderr)
	}

	paths := parseArtifactPaths(res.Stdout)
	var retrieved []string
	for _, p := range paths {
		local, err := s.Retrieve(p)
		if err != nil {
			plog.Errorf("retrieve failed for %s on %s: %v", p, s.Address, err)
			continue
		}
		retrieved = append(retrieved, local)
	}
	return retrieved, nil
}

// parseArtifactPaths implements the "final non-empty line after --batch"
// rule: the agent's last non-empty stdout line is a whitespace-separated
// list of artifact paths to retrieve.
func parseArtifactPaths(stdout string) []string {
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fields, err := shellquote.Split(line)
		if err != nil || len(fields) == 0 {
			return strings.Fields(line)
		}
		return fields
	}
	return nil
}

// Close tears down the transport. It is idempotent and never panics or
// returns an error the caller must act on; failures are logged.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	s.state = Closed
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			plog.Debugf("closing session to %s: %v", s.Address, err)
		}
		s.client = nil
	}
}

func classifyDialErr(err error) FailureKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "auth"):
		return FailureAuth
	default:
		return FailureDial
	}
}

func resolvePrivilege(sshUser string, becomeRoot bool) PrivState {
	switch {
	case becomeRoot && sshUser != "root" && sshUser != "":
		return Root
	case sshUser != "root" && sshUser != "":
		return Sudo
	default:
		return Unprivileged
	}
}

// wrapPrivileged implements the wrapping rules from spec.md §4.1: su -
// fed the root password, or sudo -S fed the sudo password. The returned
// stdin string (possibly empty) must be fed to the remote process's
// stdin and never appear in the command line itself.
func wrapPrivileged(command string, priv PrivState, creds *credentials.Set) (string, string) {
	switch priv {
	case Root:
		return fmt.Sprintf("su - -c %s", shellquote.Join(command)), creds.RootPassword + "\n"
	case Sudo:
		if creds != nil && creds.SudoPassword == "" {
			// insecure-sudo: passwordless sudo configured remotely.
			return fmt.Sprintf("sudo -n %s", command), ""
		}
		return fmt.Sprintf("sudo -S %s", command), creds.SudoPassword + "\n"
	default:
		return command, ""
	}
}
