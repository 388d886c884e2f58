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
	"io"
	"os"
	"path/filepath"

	"github.com/coreos/pkg/capnslog"
)

// openDriverLog replaces the stderr-only formatter cli.startLogging
// installed with one that also writes to a file under the run's temp
// directory, so per-node errors that are only warned about on the UI (never
// fatal there) still leave a durable trail.
func openDriverLog(tempDir string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(tempDir, "driver.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	capnslog.SetFormatter(capnslog.NewStringFormatter(io.MultiWriter(os.Stderr, f)))
	return f, nil
}
