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
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/sos-collector/archive"
	"github.com/coreos/sos-collector/cluster"
	"github.com/coreos/sos-collector/credentials"
	"github.com/coreos/sos-collector/hostgroup"
	"github.com/coreos/sos-collector/node"
	"github.com/coreos/sos-collector/nodeset"
	"github.com/coreos/sos-collector/scheduler"
	"github.com/coreos/sos-collector/system"
	"github.com/coreos/sos-collector/util"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/sos-collector", "driver")

const banner = `sos-collector: gathers sosreports from multiple nodes in a cluster`

// Run executes the full preamble-through-archive sequence described in
// spec.md §4.9, terminating the process directly (via bail or os.Exit)
// rather than returning an exit code, since the exit helper also needs
// to close any open sessions first.
func Run(opts Options) {
	if err := node.CheckControlPersist(); err != nil {
		bail(err, nil)
	}

	fmt.Println(banner)
	if !opts.Batch {
		fmt.Print("Continue? [y/N] ")
		if !confirm(os.Stdin) {
			os.Exit(ExitInterrupted)
		}
	}

	if opts.SSHKeyPath != "" {
		if ok, err := util.PathExists(opts.SSHKeyPath); err != nil || !ok {
			bail(newFatalf("ssh key %s: not found", opts.SSHKeyPath), nil)
		}
	}

	creds, err := resolveCredentials(opts)
	if err != nil {
		bail(newFatalf("resolving credentials: %v", err), nil)
	}

	defaults := hostgroup.Defaults{Primary: opts.Primary, ClusterType: opts.ClusterType, Nodes: opts.Nodes}
	if opts.Group != "" {
		doc, err := hostgroup.Load(opts.Group)
		if err != nil {
			bail(newFatalf("loading host group %s: %v", opts.Group, err), nil)
		}
		defaults = doc.ApplyTo(defaults)
	}

	primaryAddr := defaults.Primary
	if primaryAddr == "" {
		primaryAddr = "localhost"
	}

	primary := node.New(primaryAddr, creds, sessionConfig(opts, creds))
	tempDir, err := ioutil.TempDir("", "sos-collector")
	if err != nil {
		bail(newFatalf("creating temp dir: %v", err), nil)
	}
	if err := os.Chmod(tempDir, 0700); err != nil {
		bail(newFatalf("securing temp dir: %v", err), nil)
	}
	primary.TempDir = tempDir

	logFile, err := openDriverLog(tempDir)
	var driverLogPath string
	if err != nil {
		plog.Warningf("opening driver log: %v", err)
	} else {
		driverLogPath = logFile.Name()
		defer logFile.Close()
	}

	closeAll := func() { primary.Close() }

	if err := primary.Connect(); err != nil {
		bail(newFatalf("connecting to primary %s: %v", primaryAddr, err), closeAll)
	}

	profile, err := determineProfile(opts, primary)
	if err != nil {
		bail(err, closeAll)
	}

	if err := applyClusterOptions(opts, profile); err != nil {
		bail(err, closeAll)
	}

	var enumerated []string
	if profile.ShortName() != cluster.NoneProfileName {
		enumerated, err = profile.GetNodes(&sessionPrimary{primary})
		if err != nil {
			plog.Warningf("profile %s enumeration failed: %v", profile.ShortName(), err)
		}
	}

	localHostname, _ := os.Hostname()
	localAddrs := localAddresses()

	result, err := nodeset.Resolve(nodeset.Inputs{
		RawNodeArgs:     defaults.Nodes,
		Enumerated:      enumerated,
		LocalHostname:   localHostname,
		LocalAddrs:      localAddrs,
		ExplicitPrimary: primaryAddr,
		NoLocal:         opts.NoLocal,
	})
	if err != nil {
		bail(newFatalf("resolving node set: %v", err), closeAll)
	}
	if len(result.Nodes) == 0 {
		bail(newFatalf("no nodes resolved"), closeAll)
	}

	if opts.SaveGroup != "" {
		doc := &hostgroup.Document{
			Name:        opts.SaveGroup,
			Primary:     primaryAddr,
			ClusterType: profile.ShortName(),
			Nodes:       result.Nodes,
		}
		if err := hostgroup.Save(opts.SaveGroup, doc); err != nil {
			plog.Errorf("saving host group %s: %v", opts.SaveGroup, err)
		}
	}

	fmt.Printf("Nodes to collect from (%d): %v\n", len(result.Nodes), result.Nodes)
	if !opts.Batch && opts.CaseID == "" {
		fmt.Print("Case ID (optional): ")
		opts.CaseID, _ = readLine(os.Stdin)
	}

	baseCmd := BuildAgentCommand(opts)
	agentCmd := ApplyProfileRewrite(baseCmd, profile.ModifyCommand)

	timeout := time.Duration(opts.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeoutSec * time.Second
	}

	ctx, cancelSignal := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	interrupted := false
	go func() {
		if _, ok := <-sigCh; ok {
			interrupted = true
			cancelSignal()
		}
	}()

	pool := scheduler.New(ctx, runnerLimit(opts))
	outcomes := pool.Run(result.Nodes, func(addr string) *node.Session {
		nodeCreds, err := creds.ForNode(addr)
		if err != nil {
			plog.Errorf("resolving password for %s: %v", addr, err)
			nodeCreds = creds
		}
		s := node.New(addr, nodeCreds, sessionConfig(opts, nodeCreds))
		s.TempDir = tempDir
		return s
	}, func(s *node.Session) ([]string, error) {
		return s.RunAgent(agentCmd, timeout)
	})

	signal.Stop(sigCh)
	close(sigCh)

	if interrupted {
		primary.Close()
		os.Exit(ExitInterrupted)
	}

	var nodeArtifacts []archive.NodeArtifacts
	for _, o := range outcomes {
		if o.ConnectErr != nil {
			plog.Warningf("node %s: connect failed: %v", o.Address, o.ConnectErr)
			continue
		}
		if o.CollectErr != nil {
			plog.Warningf("node %s: collection failed: %v", o.Address, o.CollectErr)
		}
		if len(o.Retrieved) > 0 {
			nodeArtifacts = append(nodeArtifacts, archive.NodeArtifacts{NodeName: o.Address, Files: o.Retrieved})
		}
	}

	// run_extra_cmd (spec.md §4.3): some profiles retrieve supplementary
	// artifacts from the primary after every node's own collection is done,
	// so the primary session is kept open until these are fetched.
	if extraPaths, err := profile.RunExtraCmd(&sessionPrimary{primary}); err != nil {
		plog.Warningf("profile %s extra command failed: %v", profile.ShortName(), err)
	} else if len(extraPaths) > 0 {
		var extraFiles []string
		for _, p := range extraPaths {
			local, err := primary.Retrieve(p)
			if err != nil {
				plog.Errorf("retrieving extra artifact %s from primary %s: %v", p, primaryAddr, err)
				continue
			}
			extraFiles = append(extraFiles, local)
		}
		if len(extraFiles) > 0 {
			merged := false
			for i := range nodeArtifacts {
				if nodeArtifacts[i].NodeName == primaryAddr {
					nodeArtifacts[i].Files = append(nodeArtifacts[i].Files, extraFiles...)
					merged = true
					break
				}
			}
			if !merged {
				nodeArtifacts = append(nodeArtifacts, archive.NodeArtifacts{NodeName: primaryAddr, Files: extraFiles})
			}
		}
	}

	primary.Close()

	var driverLogs []string
	if driverLogPath != "" {
		driverLogs = []string{driverLogPath}
	}

	archiveOpts := archive.Options{Label: opts.Label, CaseID: opts.CaseID, Now: time.Now()}
	archivePath := filepath.Join(tempDir, archive.RootName(archiveOpts)+".tar.gz")
	added, err := archive.Build(archivePath, archiveOpts, nodeArtifacts, driverLogs)
	if err != nil {
		bail(newArchiveFatalf("assembling archive: %v", err), nil)
	}

	fmt.Printf("Retrieved %d report(s). Archive: %s\n", added, archivePath)
	os.Exit(ExitSuccess)
}

func resolveCredentials(opts Options) (*credentials.Set, error) {
	return credentials.Resolve(credentials.Options{
		SSHUser:         opts.SSHUser,
		SSHPort:         opts.SSHPort,
		SSHKeyPath:      opts.SSHKeyPath,
		Password:        opts.Password,
		PasswordPerNode: opts.PasswordPerNode,
		BecomeRoot:      opts.BecomeRoot,
		InsecureSudo:    opts.InsecureSudo,
	}, nil)
}

func sessionConfig(opts Options, creds *credentials.Set) node.Config {
	return node.Config{
		User:       opts.SSHUser,
		Port:       opts.SSHPort,
		KeyPath:    opts.SSHKeyPath,
		BecomeRoot: opts.BecomeRoot,
		Insecure:   opts.InsecureSudo,
	}
}

func determineProfile(opts Options, primary *node.Session) (cluster.Profile, error) {
	if opts.ClusterType != "" {
		p, err := cluster.ByName(opts.ClusterType)
		if err != nil {
			return nil, newFatalf("unknown cluster type: %v", err)
		}
		return p, nil
	}
	p, err := cluster.Detect(&sessionPrimary{primary})
	if err != nil {
		return nil, newFatalf("detecting cluster profile: %v", err)
	}
	return p, nil
}

func applyClusterOptions(opts Options, profile cluster.Profile) error {
	for _, raw := range opts.ClusterOpts {
		profileName, option, value, err := ParseClusterOption(raw)
		if err != nil {
			return err
		}
		if profileName != profile.ShortName() {
			continue
		}
		if err := cluster.SetOption(profile, option, value); err != nil {
			return newFatalf("%v", err)
		}
	}
	return nil
}

// runnerLimit sizes the connect/collect worker pool: an explicit --jobs
// wins, otherwise the pool is sized to the driver host's own available
// CPU quota so a busy driver doesn't oversubscribe itself fanning out to
// a large node set.
func runnerLimit(opts Options) int {
	if opts.Jobs > 0 {
		return opts.Jobs
	}
	if n, err := system.GetProcessors(); err == nil && n > 0 {
		return int(n)
	}
	return DefaultJobs
}

func localAddresses() []string {
	var out []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			out = append(out, ipNet.IP.String())
		}
	}
	return out
}

func confirm(r io.Reader) bool {
	line, _ := readLine(r)
	switch line {
	case "y", "Y", "yes":
		return true
	default:
		return false
	}
}

func readLine(r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, err
}
