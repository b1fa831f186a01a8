// Copyright 2017 CoreOS, Inc.
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

// Command ctrun is the thin cobra front-end over package ctrun: main does
// almost nothing but bind flags onto the option bag and call
// Initialize/RunAll/Finalize.
//
// A real deployment adds files to this package whose init() functions
// append to Suites/Tests, so registration happens before main runs.
package main

import (
	"fmt"
	"strings"

	"github.com/coreos/pkg/capnslog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/coreos/ctrun"
	"github.com/coreos/ctrun/event"
	"github.com/coreos/ctrun/options"
	"github.com/coreos/ctrun/registry"
	"github.com/coreos/ctrun/sink"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/ctrun", "cmd")

// Suites and Tests are populated by init() functions in other files of
// package main before main runs — ctrun itself ships with none.
var (
	Suites []registry.Suite
	Tests  []registry.Test
)

var (
	flagJobs          int
	flagNoEarlyExit   bool
	flagAlwaysSucceed bool
	flagPattern       string
	flagPatternGlob   bool
	flagLogLevel      string

	root = &cobra.Command{
		Use:   "ctrun",
		Short: "Run registered tests in isolated worker processes",
		RunE:  run,
	}
)

func run(cmd *cobra.Command, args []string) error {
	level := capnslog.NOTICE
	if flagLogLevel != "" {
		parsed, err := capnslog.ParseLevel(strings.ToUpper(flagLogLevel))
		if err != nil {
			return errors.Wrapf(err, "ctrun: parsing --log-level %q", flagLogLevel)
		}
		level = parsed
	}

	capnslog.SetFormatter(capnslog.NewStringFormatter(cmd.OutOrStderr()))
	capnslog.SetGlobalLogLevel(level)

	logSink := sink.NewCapnslogSink()
	reportSink := sink.ReportFunc{
		FuncName: "capnslog",
		Fn: func(kind event.Kind, payload interface{}) {
			logSink.Log(kind.String(), payload)
		},
	}

	opts := options.Options{
		Jobs:          flagJobs,
		NoEarlyExit:   flagNoEarlyExit,
		AlwaysSucceed: flagAlwaysSucceed,
		Pattern:       flagPattern,
		PatternIsGlob: flagPatternGlob,
		OutputProviders: []options.OutputProvider{
			logSink,
			reportSink,
			sink.NewLogrusSink(nil),
		},
	}

	set := ctrun.Initialize(Suites, Tests, &opts)
	defer ctrun.Finalize(set)

	var report sink.Reports
	var log sink.Logs
	for _, p := range opts.OutputProviders {
		if r, ok := p.(sink.ReportSink); ok {
			report = append(report, r)
		}
		if l, ok := p.(sink.LogSink); ok {
			log = append(log, l)
		}
	}

	status, err := ctrun.RunAll(set, opts, report, log)
	if err != nil {
		return err
	}
	if status == ctrun.WorkerExitStatus {
		return nil
	}
	if status != 0 {
		return fmt.Errorf("ctrun: one or more tests failed")
	}
	return nil
}

func main() {
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Set global log level (CRITICAL, ERROR, WARNING, NOTICE, INFO, DEBUG, TRACE)")
	root.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "Number of concurrent worker processes (0 = detected CPU count)")
	root.Flags().BoolVar(&flagNoEarlyExit, "no-early-exit", false, "Set the no-early-exit option (the run never stops early on a failing test either way)")
	root.Flags().BoolVar(&flagAlwaysSucceed, "always-succeed", false, "Always report overall success")
	root.Flags().StringVarP(&flagPattern, "pattern", "p", "", "Only run tests matching this glob/regex")
	root.Flags().BoolVar(&flagPatternGlob, "glob", false, "Treat --pattern as a glob instead of a regular expression")

	if err := root.Execute(); err != nil {
		plog.Fatal(err)
	}
}
