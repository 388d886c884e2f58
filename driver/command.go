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

	"github.com/spf13/cobra"

	"github.com/coreos/sos-collector/cluster"
)

// NewCommand builds the root cobra command, binding every flag in
// spec.md §6's surface directly onto an Options value closed over by
// RunE.
func NewCommand() *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "sos-collector [flags] [nodes...]",
		Short: "Collect sosreports from every node in a cluster into one archive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ListOptions {
				printListOptions(cmd)
				return nil
			}
			opts.Nodes = append(opts.Nodes, args...)
			Run(opts)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.AllOptions, "alloptions", "a", false, "Pass all sosreport options on to the agent.")
	flags.BoolVar(&opts.AllLogs, "all-logs", false, "Collect all logs regardless of size.")
	flags.BoolVarP(&opts.BecomeRoot, "become", "b", false, "Escalate to root via sudo/su on every node.")
	flags.BoolVar(&opts.Batch, "batch", false, "Run non-interactively: skip the confirmation and case-id prompts.")
	flags.StringVar(&opts.CaseID, "case-id", "", "Support case identifier, embedded in sosreport and archive names.")
	flags.StringVar(&opts.ClusterType, "cluster-type", "", "Force a specific cluster profile instead of auto-detecting.")
	flags.StringArrayVarP(&opts.ClusterOpts, "cluster-option", "c", nil, "Set a cluster profile option: profile.option=value. Repeatable.")
	flags.StringVar(&opts.Chroot, "chroot", "auto", "Chroot behavior for the agent: auto, always, or never.")
	flags.StringVarP(&opts.Sysroot, "sysroot", "s", "", "Path to the system root the agent should inspect, if not /.")
	flags.StringArrayVarP(&opts.EnablePlugins, "enable-plugins", "e", nil, "Enable an otherwise-disabled sosreport plugin. Repeatable.")
	flags.StringVar(&opts.Group, "group", "", "Load a saved host group as defaults instead of --nodes.")
	flags.StringVar(&opts.SaveGroup, "save-group", "", "Save the resolved node set as a host group under this name.")
	flags.StringVar(&opts.Image, "image", "", "Container image to run the agent from, if containerized.")
	flags.StringVarP(&opts.SSHKeyPath, "ssh-key", "i", "", "Path to the SSH private key used for every node.")
	flags.BoolVar(&opts.InsecureSudo, "insecure-sudo", false, "Assume NOPASSWD sudo; never prompt for a sudo password.")
	flags.StringArrayVarP(&opts.PluginOpts, "plugin-option", "k", nil, "Set a sosreport plugin option: plugin.option=value. Repeatable.")
	flags.BoolVarP(&opts.ListOptions, "list-options", "l", false, "List every registered cluster profile and its options, then exit.")
	flags.StringVar(&opts.Label, "label", "", "Label embedded in the final archive's directory name.")
	flags.IntVar(&opts.LogSizeMiB, "log-size", 0, "Maximum log size in MiB the agent collects per file (0 = agent default).")
	flags.StringArrayVarP(&opts.SkipPlugins, "skip-plugins", "n", nil, "Disable a sosreport plugin. Repeatable.")
	flags.StringArrayVar(&opts.Nodes, "nodes", nil, "Node name, address, or glob pattern to collect from. Repeatable.")
	flags.BoolVar(&opts.NoPkgCheck, "no-pkg-check", false, "Skip the agent package/version compatibility check.")
	flags.BoolVar(&opts.NoLocal, "no-local", false, "Exclude the driver's own host from the resolved node set.")
	flags.StringVar(&opts.Primary, "master", "", "Primary node to query for cluster enumeration (default: localhost).")
	flags.StringArrayVarP(&opts.OnlyPlugins, "only-plugins", "o", nil, "Run only the named sosreport plugins. Repeatable.")
	flags.IntVarP(&opts.SSHPort, "ssh-port", "p", 22, "SSH port used for every node.")
	flags.BoolVar(&opts.Password, "password", false, "Prompt once for a password shared by every node.")
	flags.BoolVar(&opts.PasswordPerNode, "password-per-node", false, "Prompt for a separate password per node.")
	flags.StringVar(&opts.Preset, "preset", "", "Named sosreport preset to pass through to the agent.")
	flags.StringVar(&opts.SosCmd, "sos-cmd", "", "Raw sosreport command line override; rejected if it contains shell metacharacters.")
	flags.StringVar(&opts.SSHUser, "ssh-user", "root", "SSH username used for every node.")
	flags.IntVar(&opts.TimeoutSec, "timeout", DefaultTimeoutSec, "Per-node agent timeout in seconds.")
	flags.BoolVar(&opts.Verify, "verify", false, "Run sosreport's --verify pass.")
	flags.StringVarP(&opts.Compression, "compression", "z", "auto", "Compression method: auto, gzip, bzip2, or xz.")
	flags.IntVar(&opts.Jobs, "jobs", DefaultJobs, "Number of nodes to connect to and collect from concurrently.")

	return cmd
}

func printListOptions(cmd *cobra.Command) {
	for _, p := range cluster.All() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p.ShortName(), p.HumanName())
		for _, o := range p.Options() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s): %s\n", o.Name, o.Description, o.Default)
		}
	}
}
