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
	"strings"

	execx "github.com/coreos/sos-collector/system/exec"
)

// ErrControlPersistUnsupported is returned by CheckControlPersist when the
// local ssh binary does not understand ControlPersist, i.e. cannot
// support the persistent multiplexed control channel spec.md §4.1 and §6
// require. This repo talks SSH itself via golang.org/x/crypto/ssh and
// always multiplexes every command for a host through one *ssh.Client, so
// this check is a pre-flight guard for operator-visible parity with the
// original tool rather than a live compatibility probe of our own
// transport.
type ErrControlPersistUnsupported struct{}

func (ErrControlPersistUnsupported) Error() string {
	return "local ssh client does not support ControlPersist; sos-collector requires a persistent multiplexed control channel"
}

// CheckControlPersist shells out to the system ssh client and inspects
// its stderr for the same markers the original sos collector used to
// detect missing ControlPersist support.
func CheckControlPersist() error {
	cmd := execx.Command("ssh", "-o", "ControlPersist")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	errOut := stderr.String()
	if strings.Contains(errOut, "Bad configuration option") || strings.Contains(errOut, "Usage:") {
		return ErrControlPersistUnsupported{}
	}
	return nil
}
