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

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/carv-ics-forth/batchq/cmd/jobstatus/commands"
	"github.com/carv-ics-forth/batchq/cmd/jobstatus/commands/root"
	"github.com/carv-ics-forth/batchq/pkg/ui"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sig
		cancel()
	}()

	rootCmd := root.NewCommand(ctx, filepath.Base(os.Args[0]))

	var logLevel string

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", `set the log level, e.g. "debug", "info", "warn", "error"`)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger, err := ui.SetLogLevel(logLevel)
		if err != nil {
			return err
		}

		commands.DefaultLogger = logger

		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		if errors.Cause(err) == context.Canceled {
			os.Exit(1)
		}

		logrus.Fatal(err)
	}
}
