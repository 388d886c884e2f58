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
	"fmt"
	"os"
)

// Exit codes per spec.md §6.
const (
	ExitSuccess       = 0
	ExitFatal         = 1
	ExitArchiveFailed = 2
	ExitInterrupted   = 130
)

// fatalError is a pre-flight or archive-level fatal: the central exit
// helper (bail) logs it and terminates the process with the given code.
type fatalError struct {
	code int
	msg  string
}

func (e *fatalError) Error() string { return e.msg }

func newFatalf(format string, args ...interface{}) error {
	return &fatalError{code: ExitFatal, msg: fmt.Sprintf(format, args...)}
}

func newArchiveFatalf(format string, args ...interface{}) error {
	return &fatalError{code: ExitArchiveFailed, msg: fmt.Sprintf(format, args...)}
}

// bail is the single exit helper spec.md §7 describes: every fatal exit
// writes one line to the UI and driver log, then terminates. sessions
// are closed best-effort before exiting.
func bail(err error, closeAll func()) {
	if closeAll != nil {
		closeAll()
	}
	code := ExitFatal
	if fe, ok := err.(*fatalError); ok {
		code = fe.code
	}
	plog.Errorf("%v", err)
	fmt.Fprintf(os.Stderr, "sos-collector: %v\n", err)
	os.Exit(code)
}
