// Copyright © 2023 FORTH-ICS
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

package ui

import (
	"github.com/carv-ics-forth/batchq/compute"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap/zapcore"
)

// SetLogLevel sets the level of the command-line messages, and returns a component logger
// at the matching level.
func SetLogLevel(level string) (logr.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logr.Discard(), errors.Wrap(err, "could not parse log level")
	}

	logrus.SetLevel(lvl)

	return compute.NewLogger(ZapLevel(lvl)), nil
}

// ZapLevel maps a logrus level to the closest zap level.
func ZapLevel(lvl logrus.Level) zapcore.Level {
	switch lvl {
	case logrus.TraceLevel, logrus.DebugLevel:
		return zapcore.DebugLevel
	case logrus.InfoLevel:
		return zapcore.InfoLevel
	case logrus.WarnLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
