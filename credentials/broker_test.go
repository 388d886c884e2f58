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

package credentials

import (
	"fmt"
	"sync"
	"testing"
)

func fakePrompter(answers map[string]string) Prompter {
	return func(prompt string) (string, error) {
		if a, ok := answers[prompt]; ok {
			return a, nil
		}
		return "answer", nil
	}
}

func TestResolveRootNoPassword(t *testing.T) {
	calls := 0
	prompt := func(p string) (string, error) {
		calls++
		return "x", nil
	}
	cs, err := Resolve(Options{SSHUser: "root"}, prompt)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("expected no prompts, got %d", calls)
	}
	if cs.SudoPassword != "" || cs.SSHPassword != "" || cs.RootPassword != "" {
		t.Fatalf("expected no passwords set, got %+v", cs)
	}
}

func TestResolveNonRootSudoOnly(t *testing.T) {
	cs, err := Resolve(Options{SSHUser: "ops"}, fakePrompter(map[string]string{
		"sudo password: ": "sudopw",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cs.SudoPassword != "sudopw" {
		t.Fatalf("expected sudo password, got %q", cs.SudoPassword)
	}
	if cs.SSHPassword != "" {
		t.Fatalf("expected no ssh password, got %q", cs.SSHPassword)
	}
}

func TestResolveInsecureSudoSkipsPrompt(t *testing.T) {
	calls := 0
	cs, err := Resolve(Options{SSHUser: "ops", InsecureSudo: true}, func(p string) (string, error) {
		calls++
		return "", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("expected no prompts with insecure sudo, got %d", calls)
	}
	if cs.SudoPassword != "" {
		t.Fatalf("expected empty sudo password, got %q", cs.SudoPassword)
	}
}

func TestResolvePasswordNonRootReusesForSudo(t *testing.T) {
	cs, err := Resolve(Options{SSHUser: "ops", Password: true}, fakePrompter(map[string]string{
		"ssh password: ": "sshpw",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cs.SSHPassword != "sshpw" || cs.SudoPassword != "sshpw" {
		t.Fatalf("expected ssh+sudo both sshpw, got %+v", cs)
	}
}

func TestResolveBecomeRootClearedForRootUser(t *testing.T) {
	calls := 0
	cs, err := Resolve(Options{SSHUser: "root", BecomeRoot: true}, func(p string) (string, error) {
		calls++
		return "rootpw", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("expected become_root silently cleared, no prompts, got %d", calls)
	}
	if cs.RootPassword != "" {
		t.Fatalf("expected no root password, got %q", cs.RootPassword)
	}
}

func TestResolveBecomeRootPromptsForNonRoot(t *testing.T) {
	cs, err := Resolve(Options{SSHUser: "ops", BecomeRoot: true, InsecureSudo: true}, fakePrompter(map[string]string{
		"root password: ": "rootpw",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cs.RootPassword != "rootpw" {
		t.Fatalf("expected root password, got %q", cs.RootPassword)
	}
}

func TestPromptForNodeCachesPerNode(t *testing.T) {
	calls := 0
	cs, err := Resolve(Options{SSHUser: "ops", PasswordPerNode: true}, func(p string) (string, error) {
		calls++
		return "pw-" + p, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	pw1, err := cs.PromptForNode("host1")
	if err != nil {
		t.Fatal(err)
	}
	pw2, err := cs.PromptForNode("host1")
	if err != nil {
		t.Fatal(err)
	}
	if pw1 != pw2 {
		t.Fatalf("expected cached password, got %q then %q", pw1, pw2)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one prompt for host1, got %d", calls)
	}
}

func TestForNodeReturnsSelfWhenNotPerNode(t *testing.T) {
	cs, err := Resolve(Options{SSHUser: "root"}, fakePrompter(nil))
	if err != nil {
		t.Fatal(err)
	}
	clone, err := cs.ForNode("host1")
	if err != nil {
		t.Fatal(err)
	}
	if clone != cs {
		t.Fatalf("expected ForNode to return the same set unchanged when PerNode is false")
	}
}

func TestForNodeResolvesDistinctPasswordPerNode(t *testing.T) {
	cs, err := Resolve(Options{SSHUser: "ops", PasswordPerNode: true}, func(p string) (string, error) {
		return "pw-" + p, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	one, err := cs.ForNode("host1")
	if err != nil {
		t.Fatal(err)
	}
	two, err := cs.ForNode("host2")
	if err != nil {
		t.Fatal(err)
	}
	if one.SSHPassword == two.SSHPassword {
		t.Fatalf("expected distinct per-node passwords, got %q for both", one.SSHPassword)
	}
	if cs.SSHPassword != "" {
		t.Fatalf("expected the base set's SSHPassword to remain empty, got %q", cs.SSHPassword)
	}
}

// TestForNodeConcurrentCallsDontRace exercises the same path the scheduler's
// bounded connect phase does: many goroutines calling ForNode for distinct
// nodes at once. Run with -race to catch a regression of the unsynchronized
// perNodeCach map writes this guards against.
func TestForNodeConcurrentCallsDontRace(t *testing.T) {
	cs, err := Resolve(Options{SSHUser: "ops", PasswordPerNode: true}, func(p string) (string, error) {
		return "pw-" + p, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node := fmt.Sprintf("host%d", i)
			if _, err := cs.ForNode(node); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
