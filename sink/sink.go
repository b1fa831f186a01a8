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

// Package sink defines where rendered lifecycle events go: a ReportSink
// for the structured event stream and a LogSink for the human-readable
// side channel, plus fan-out composites and the in-tree default
// implementations.
package sink

import (
	"fmt"

	"github.com/coreos/pkg/capnslog"
	"github.com/sirupsen/logrus"

	"github.com/coreos/ctrun/event"
)

// ReportSink receives every lifecycle event, including synthesized ones.
// Implementations must tolerate being called multiple times for the same
// outcome: the crash-recovery paths re-synthesize POST_TEST/POST_FINI
// events a dead child never got to send.
type ReportSink interface {
	Name() string
	Report(kind event.Kind, payload interface{})
}

// LogSink is the human-readable, fire-and-forget side channel.
type LogSink interface {
	Name() string
	Log(category string, payload interface{})
}

// Reports fans one Report call out to every registered ReportSink.
type Reports []ReportSink

func (rs Reports) Name() string { return "fanout" }

func (rs Reports) Report(kind event.Kind, payload interface{}) {
	for _, r := range rs {
		r.Report(kind, payload)
	}
}

// Logs is the Log-sink analogue of Reports.
type Logs []LogSink

func (ls Logs) Name() string { return "fanout" }

func (ls Logs) Log(category string, payload interface{}) {
	for _, l := range ls {
		l.Log(category, payload)
	}
}

// CapnslogSink is the default Log sink: one capnslog package logger per
// category, created lazily.
type CapnslogSink struct {
	loggers map[string]*capnslog.PackageLogger
}

// NewCapnslogSink returns a Log sink backed by capnslog.
func NewCapnslogSink() *CapnslogSink {
	return &CapnslogSink{loggers: make(map[string]*capnslog.PackageLogger)}
}

func (c *CapnslogSink) Name() string { return "capnslog" }

func (c *CapnslogSink) logger(category string) *capnslog.PackageLogger {
	l, ok := c.loggers[category]
	if !ok {
		l = capnslog.NewPackageLogger("github.com/coreos/ctrun", category)
		c.loggers[category] = l
	}
	return l
}

func (c *CapnslogSink) Log(category string, payload interface{}) {
	c.logger(category).Infof("%v", payload)
}

// LogrusSink is an alternate structured Log sink, registered through
// Options.OutputProviders alongside or instead of the default.
type LogrusSink struct {
	entry *logrus.Entry
}

// NewLogrusSink returns a Log sink backed by a logrus.Logger.
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogrusSink{entry: logrus.NewEntry(logger)}
}

func (l *LogrusSink) Name() string { return "logrus" }

func (l *LogrusSink) Log(category string, payload interface{}) {
	l.entry.WithField("category", category).Info(fmt.Sprint(payload))
}

// ReportFunc adapts a plain function to the ReportSink interface, for tests
// and small in-process callers that don't need a named struct.
type ReportFunc struct {
	FuncName string
	Fn       func(event.Kind, interface{})
}

func (f ReportFunc) Name() string { return f.FuncName }
func (f ReportFunc) Report(kind event.Kind, payload interface{}) {
	f.Fn(kind, payload)
}
