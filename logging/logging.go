/*
   Timesketch Analyzer Engine - Collaborative Forensic Timelines

   Copyright (C) 2026 Timesketch Authors.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	rotatelogs "github.com/Velocidex/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"www.timesketch.org/golang/timesketch/config"
)

var (
	mu             sync.Mutex
	global_manager *LogManager

	// Components route messages to separate log files when
	// separate_logs_per_component is set.
	GenericComponent  = "Timesketch"
	FrontendComponent = "TimesketchFrontend"
	PipelineComponent = "TimesketchPipeline"
	AnalyzerComponent = "TimesketchAnalyzer"
	ToolComponent     = "TimesketchTool"
)

// A wrapper around logrus with printf style convenience methods.
type LogContext struct {
	*logrus.Logger
}

func (self *LogContext) Debug(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Debug(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Info(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Info(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Warn(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Warn(fmt.Sprintf(format, v...))
	}
}

func (self *LogContext) Error(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Error(fmt.Sprintf(format, v...))
	}
}

type LogManager struct {
	mu       sync.Mutex
	contexts map[*string]*LogContext
}

// GetLogger returns the cached logger for the given component,
// creating it on first use.
func (self *LogManager) GetLogger(
	config_obj *config.Config, component *string) *LogContext {
	self.mu.Lock()
	defer self.mu.Unlock()

	ctx, ok := self.contexts[component]
	if !ok {
		ctx = self.makeNewComponent(config_obj, component)
		self.contexts[component] = ctx
	}
	return ctx
}

func (self *LogManager) Reset() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.contexts = make(map[*string]*LogContext)
}

func (self *LogManager) makeNewComponent(
	config_obj *config.Config, component *string) *LogContext {

	logger := logrus.New()
	logger.Out = os.Stderr
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if config_obj != nil && config_obj.Logging != nil {
		if config_obj.Logging.Debug {
			logger.SetLevel(logrus.DebugLevel)
		}

		if config_obj.Logging.OutputDirectory != "" {
			hook, err := makeFileHook(config_obj, component)
			if err == nil {
				logger.Hooks.Add(hook)
			} else {
				logger.Error(fmt.Sprintf(
					"Unable to attach file log for %v: %v",
					*component, err))
			}
		}
	}

	return &LogContext{logger}
}

func makeFileHook(
	config_obj *config.Config, component *string) (logrus.Hook, error) {

	base_name := "timesketch"
	if config_obj.Logging.SeparateLogsPerComponent {
		base_name = *component
	}

	max_age := config_obj.Logging.MaxAge
	if max_age == 0 {
		max_age = 30
	}

	pathname := filepath.Join(
		config_obj.Logging.OutputDirectory, base_name+".log")
	writer, err := rotatelogs.New(
		pathname+".%Y%m%d",
		rotatelogs.WithLinkName(pathname),
		rotatelogs.WithMaxAge(time.Duration(max_age)*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, err
	}

	return lfshook.NewHook(writer, &logrus.JSONFormatter{}), nil
}

func GetLogger(config_obj *config.Config, component *string) *LogContext {
	mu.Lock()
	defer mu.Unlock()

	if global_manager == nil {
		global_manager = &LogManager{
			contexts: make(map[*string]*LogContext),
		}
	}
	return global_manager.GetLogger(config_obj, component)
}

// Used by tests to drop cached file handles between configs.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if global_manager != nil {
		global_manager.Reset()
	}
}
