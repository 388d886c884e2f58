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
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	execx "github.com/coreos/sos-collector/system/exec"
)

// localTransport is the "localhost" short-circuit described in spec.md
// §4.1: it satisfies the same Session API but never opens a network
// connection, running commands directly and copying files on the local
// filesystem.
type localTransport struct{}

func newLocalTransport() *localTransport {
	return &localTransport{}
}

// run executes command through /bin/sh -c, honoring timeout via
// context cancellation (system/exec.ExecCmd.Kill). Escalation stdin (sudo
// -S / su -) is fed the same way it would be over SSH.
func (l *localTransport) run(command string, timeout time.Duration, stdin string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := execx.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	err := cmd.Run()
	res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		return res, nil
	}
	if err == nil {
		return res, nil
	}
	if exitErr, ok := err.(interface{ ExitCode() int }); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, errors.Wrap(err, "running local command")
}

// copyFile copies a local path to another local path, used when the
// "remote" artifact is already on the driver's own filesystem.
func (l *localTransport) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
