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

package node

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/coreos/sos-collector/credentials"
	"github.com/coreos/sos-collector/network"
)

// dial establishes the single control channel used for every subsequent
// command on this host. Re-used ssh.Session objects created from the one
// *ssh.Client below are what gives us persistent multiplexing without
// shelling out to a system ssh binary and its ControlMaster socket.
func dial(address string, creds *credentials.Set, conf Config) (*ssh.Client, error) {
	port := conf.Port
	if port == 0 {
		port = 22
	}
	addr := ensurePortSuffix(address, port)

	auths, err := authMethods(creds, conf)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            conf.User,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	dialer := conf.Dialer
	if dialer == nil {
		dialer = network.NewRetryDialer()
	}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s", addr)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func authMethods(creds *credentials.Set, conf Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if conf.KeyPath != "" {
		key, err := ioutil.ReadFile(conf.KeyPath)
		if err != nil {
			return nil, errors.Wrapf(err, "reading ssh key %s", conf.KeyPath)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing ssh key %s", conf.KeyPath)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if creds != nil && creds.SSHPassword != "" {
		methods = append(methods, ssh.Password(creds.SSHPassword))
	}

	if len(methods) == 0 {
		return nil, errors.New("no ssh authentication method available (need --ssh-key or --password)")
	}
	return methods, nil
}

// ensurePortSuffix appends port to host if not already present, handling
// bracketed IPv6 literals.
func ensurePortSuffix(host string, port int) string {
	switch {
	case !strings.Contains(host, ":"):
		return fmt.Sprintf("%s:%d", host, port)
	case strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]"):
		return fmt.Sprintf("%s:%d", host, port)
	case strings.HasPrefix(host, "[") && strings.Contains(host, "]:"):
		return host
	case strings.Count(host, ":") > 1:
		return fmt.Sprintf("[%s]:%d", host, port)
	default:
		return host
	}
}

// runWithStdin runs command over a fresh ssh.Session multiplexed through
// the session's single client connection, optionally feeding stdin (used
// to supply escalation passwords without putting them on the command
// line), and enforces timeout by closing the session.
func (s *Session) runWithStdin(command string, timeout time.Duration, stdin string) (RunResult, error) {
	if s.LocalExec {
		return s.local.run(command, timeout, stdin)
	}

	session, err := s.client.NewSession()
	if err != nil {
		return RunResult{}, errors.Wrapf(err, "opening ssh session to %s", s.Address)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		if exitErr, ok := err.(*ssh.ExitError); ok {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return res, errors.Wrapf(err, "running command on %s", s.Address)
	case <-time.After(timeout):
		// Best-effort: ask the remote process to terminate, then give
		// up on it; the session is closed by the deferred Close above.
		_ = session.Signal(ssh.SIGTERM)
		return RunResult{TimedOut: true}, nil
	}
}

// retrieveSSH streams remotePath to local by running `sudo cat` (or
// plain `cat` for an unprivileged root session) over a dedicated ssh
// session, following the teacher's ReadFile/InstallFile streaming
// pattern rather than a separate SFTP subsystem.
func (s *Session) retrieveSSH(remotePath, local string) error {
	session, err := s.client.NewSession()
	if err != nil {
		return errors.Wrap(err, "opening ssh session")
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	session.Stderr = &stderr

	cmd := fmt.Sprintf("cat %s", shQuote(remotePath))
	if s.privilege != Unprivileged {
		cmd = fmt.Sprintf("sudo cat %s", shQuote(remotePath))
	}

	if err := session.Start(cmd); err != nil {
		return err
	}

	out, err := os.OpenFile(local, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, stdout); err != nil {
		return errors.Wrapf(err, "streaming %s", remotePath)
	}

	if err := session.Wait(); err != nil {
		return errors.Wrapf(err, "remote cat failed: %s", stderr.String())
	}
	return nil
}

func shQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
