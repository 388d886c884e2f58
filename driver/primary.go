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
	"time"

	"github.com/coreos/sos-collector/node"
)

// sessionPrimary adapts a *node.Session to cluster.PrimaryNode's narrow,
// package-agnostic Run signature, keeping the cluster package free of any
// import on node.
type sessionPrimary struct {
	s *node.Session
}

func (p *sessionPrimary) Run(command string, timeoutSeconds int) (string, int, error) {
	res, err := p.s.Run(command, time.Duration(timeoutSeconds)*time.Second, p.s.Privilege() != node.Unprivileged)
	if err != nil {
		return "", -1, err
	}
	return res.Stdout, res.ExitCode, nil
}

func (p *sessionPrimary) Hostname() string { return p.s.Hostname() }
func (p *sessionPrimary) Address() string  { return p.s.Address }
