// Copyright 2025 The Autopeer Authors.
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

package log

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options configures the process-wide logger.
type Options struct {
	// Name is added to every entry as the logger name.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Level is one of debug, info, warn or error. It can be changed at runtime.
	Level string `json:"level,omitempty" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format,omitempty" mapstructure:"format"`

	EnableColor bool `json:"enable-color,omitempty" mapstructure:"enable-color"`

	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip is the number of wrapper frames between the call site and zap.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// OutputPaths are zap sinks: stdout, stderr or file paths.
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: true,
		CallerSkip:  2, // package function plus zapLogger method
		OutputPaths: []string{"stdout"},
	}
}

func (o *Options) Validate() []error {
	var errs []error
	switch o.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported log.level %q", o.Level))
	}
	if o.Format != "json" && o.Format != "console" {
		errs = append(errs, fmt.Errorf("unsupported log.format %q", o.Format))
	}
	if len(o.OutputPaths) == 0 {
		errs = append(errs, fmt.Errorf("log.output-paths must not be empty"))
	}
	return errs
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "log.name", o.Name, "Logger name added to every entry.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level: debug, info, warn or error. Reloaded from the config file.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Output format: json or console.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize levels in console format.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit file and line from entries.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "Caller frames to skip.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log sinks, e.g. stdout or /var/log/cpeer-voice-agent.log.")
}
