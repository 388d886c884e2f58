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

package scheduler

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/coreos/sos-collector/credentials"
	"github.com/coreos/sos-collector/node"
)

func newLocalSession(tmp string) func(address string) *node.Session {
	return func(address string) *node.Session {
		s := node.New("localhost", &credentials.Set{}, node.Config{})
		s.TempDir = tmp
		return s
	}
}

func TestPoolRunAllSucceed(t *testing.T) {
	tmp, err := ioutil.TempDir("", "scheduler-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmp)

	pool := New(context.Background(), 2)
	outcomes := pool.Run(
		[]string{"localhost", "localhost"},
		newLocalSession(tmp),
		func(s *node.Session) ([]string, error) {
			return nil, nil
		},
	)

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.ConnectErr != nil {
			t.Fatalf("unexpected connect error: %v", o.ConnectErr)
		}
	}
}

func TestPoolIsolatesPerNodeFailure(t *testing.T) {
	tmp, err := ioutil.TempDir("", "scheduler-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmp)

	pool := New(context.Background(), 2)
	addresses := []string{"localhost", "localhost"}
	calls := 0
	outcomes := pool.Run(
		addresses,
		newLocalSession(tmp),
		func(s *node.Session) ([]string, error) {
			calls++
			if calls == 1 {
				return nil, fmt.Errorf("collection failed")
			}
			return []string{"artifact"}, nil
		},
	)

	var failed, succeeded int
	for _, o := range outcomes {
		if o.CollectErr != nil {
			failed++
		} else if len(o.Retrieved) > 0 {
			succeeded++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Fatalf("expected one failure and one success in isolation, got failed=%d succeeded=%d", failed, succeeded)
	}
}

func TestPoolCancelStopsFurtherConnects(t *testing.T) {
	tmp, err := ioutil.TempDir("", "scheduler-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmp)

	pool := New(context.Background(), 1)
	pool.Cancel()

	outcomes := pool.Run(
		[]string{"localhost", "localhost", "localhost"},
		newLocalSession(tmp),
		func(s *node.Session) ([]string, error) { return nil, nil },
	)

	for _, o := range outcomes {
		if o.Session != nil {
			t.Fatal("expected no sessions to connect after cancellation")
		}
		if o.ConnectErr == nil {
			t.Fatal("expected connect error recorded for cancelled worker")
		}
	}
}

func TestTotalRetrieved(t *testing.T) {
	outcomes := []NodeOutcome{
		{Retrieved: []string{"a", "b"}},
		{Retrieved: []string{"c"}},
		{},
	}
	if got := TotalRetrieved(outcomes); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestPoolRunRespectsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	pool := New(ctx, 1)
	time.Sleep(60 * time.Millisecond)
	if !pool.Cancelled() {
		t.Fatal("expected pool to observe parent context deadline as cancellation")
	}
}
