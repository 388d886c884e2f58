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

// Package archive assembles the final gzipped tar bundling every
// retrieved node artifact, the orchestrator's own driver logs, and the
// md5 sidecar files collectors emit, under one randomly-suffixed root
// directory name.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/pkg/capnslog"
	"github.com/pborman/uuid"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/sos-collector", "archive")

// NodeArtifacts is one node's contribution to the archive: every locally
// retrieved file path, to be added under the root directory named after
// the node.
type NodeArtifacts struct {
	NodeName string
	Files    []string
}

// Options controls the archive's root directory naming.
type Options struct {
	Label string
	CaseID string
	// Now is the timestamp used in the root directory name; tests
	// supply a fixed value since time.Now is otherwise unavailable to
	// deterministic callers.
	Now time.Time
}

// RootName builds the `sos-collector[-LABEL][-CASE]-YYYY-MM-DD-RRRRR`
// directory name, where RRRRR is 5 random lowercase letters derived from
// a fresh UUID so no external RNG seeding is needed.
func RootName(opts Options) string {
	var b strings.Builder
	b.WriteString("sos-collector")
	if opts.Label != "" {
		b.WriteString("-")
		b.WriteString(opts.Label)
	}
	if opts.CaseID != "" {
		b.WriteString("-")
		b.WriteString(opts.CaseID)
	}
	b.WriteString("-")
	b.WriteString(opts.Now.Format("2006-01-02"))
	b.WriteString("-")
	b.WriteString(randomSuffix())
	return b.String()
}

func randomSuffix() string {
	id := uuid.NewRandom()
	const letters = "abcdefghijklmnopqrstuvwxyz"
	out := make([]byte, 5)
	for i := range out {
		out[i] = letters[int(id[i])%len(letters)]
	}
	return string(out)
}

// Build writes a gzipped tar to destPath containing, under RootName(opts):
//   - every artifact from nodes, under root/<node>/..., except files whose
//     basename contains ".md5", which are placed under root/md5/ instead
//   - every path in driverLogs, under root/logs/
//
// Per-file add failures are logged and skipped rather than aborting the
// whole archive. Build refuses to write an archive with zero files added
// (spec.md §4.7's "0 retrieved files produces no archive" rule), letting
// the caller decide the corresponding exit code.
func Build(destPath string, opts Options, nodes []NodeArtifacts, driverLogs []string) (int, error) {
	root := RootName(opts)

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating archive %s: %w", destPath, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	added := 0
	for _, n := range nodes {
		for _, f := range n.Files {
			dest := path.Join(root, n.NodeName, filepath.Base(f))
			if isMD5Sidecar(filepath.Base(f)) {
				dest = path.Join(root, "md5", n.NodeName+"-"+filepath.Base(f))
			}
			if err := addFile(tw, f, dest); err != nil {
				plog.Errorf("adding %s to archive: %v", f, err)
				continue
			}
			added++
		}
	}

	for _, f := range driverLogs {
		dest := path.Join(root, "logs", filepath.Base(f))
		if err := addFile(tw, f, dest); err != nil {
			plog.Errorf("adding log %s to archive: %v", f, err)
			continue
		}
		added++
	}

	if added == 0 {
		tw.Close()
		gz.Close()
		out.Close()
		os.Remove(destPath)
		return 0, fmt.Errorf("no files retrieved, refusing to write an empty archive")
	}

	if err := tw.Close(); err != nil {
		return added, fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return added, fmt.Errorf("closing gzip writer: %w", err)
	}
	return added, nil
}

func addFile(tw *tar.Writer, srcPath, destPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = destPath

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return err
	}
	return nil
}

// isMD5Sidecar implements the "basename contains .md5" rule Build uses
// to route a retrieved file under root/md5/ instead of its node's subtree.
func isMD5Sidecar(name string) bool {
	return strings.Contains(name, ".md5")
}
