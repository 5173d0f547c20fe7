// Copyright 2025 go-highway Authors
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

// Command synetbench builds a merged convolution from flags, fills it with
// random weights and runs, verifies or benchmarks it.
//
// Usage:
//
//	synetbench run --chain cdc --height 56 --width 56 --src-c 24 --mid-c 144 --dst-c 24
//	synetbench verify --chain dc --src-c 96 --dst-c 24 --kernel 5 --stride 2 --backend lanes8
//	synetbench bench --chain cd --threads 4 --iterations 200 -log=debug
//
// verify compares the tiled pipeline against the untiled reference with the
// same weights; bench reports the time per Forward and the achieved GFLOP/s.
package main

import (
	"flag"
	"os"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"
)

func main() {
	log.AddFlags()
	if err := newRootCommand().Execute(); err != nil {
		log.Error.Printf("synetbench: %v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg config
	root := &cobra.Command{
		Use:           "synetbench",
		Short:         "Run, verify and benchmark bf16 merged convolutions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg.addFlags(root.PersistentFlags())
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run one Forward and print the plan",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runOnce(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Compare the tiled pipeline against the untiled reference",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return verify(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "bench",
			Short: "Time Forward, optionally from several goroutines",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return bench(cmd.Context(), cmd.OutOrStdout(), cfg)
			},
		},
	)
	return root
}
