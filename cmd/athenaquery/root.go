// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/athena"
	"github.com/athena-adbc/go/adbc/sqldriver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	driverOpts []athena.DriverOption
}

func newApp() *app {
	return &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
}

func execute(a *app, args []string) int {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type runOptions struct {
	dbOpts  map[string]string
	query   string
	timeout time.Duration
	metrics bool
	verbose bool
}

func newRootCmd(a *app) *cobra.Command {
	var (
		configPath string
		flagCfg    fileConfig
		options    []string
		timeout    time.Duration
		metrics    bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "athenaquery [flags] SQL",
		Short: "Run a SQL statement on Amazon Athena",
		Long: `Run a SQL statement on Amazon Athena and print the result as tab separated values.

Connection settings come from the YAML file given by --config, overridden by flags.
Pass - as the statement to read it from standard input.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &fileConfig{}
			if configPath != "" {
				loaded, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			applyFlags(cmd, cfg, &flagCfg)

			if cfg.Options == nil {
				cfg.Options = make(map[string]string)
			}
			for _, kv := range options {
				key, value, ok := strings.Cut(kv, "=")
				if !ok || strings.TrimSpace(key) == "" {
					return fmt.Errorf("invalid option %q, expected key=value", kv)
				}
				cfg.Options[strings.TrimSpace(key)] = value
			}

			query := args[0]
			if query == "-" {
				data, err := io.ReadAll(a.stdin)
				if err != nil {
					return fmt.Errorf("read statement: %w", err)
				}
				query = string(data)
			}
			query = strings.TrimSpace(query)
			if query == "" {
				return errors.New("empty SQL statement")
			}

			return a.run(cmd.Context(), runOptions{
				dbOpts:  cfg.databaseOptions(),
				query:   query,
				timeout: timeout,
				metrics: metrics,
				verbose: verbose,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&flagCfg.Region, "region", "", "AWS region")
	flags.StringVar(&flagCfg.Profile, "profile", "", "AWS shared config profile")
	flags.StringVar(&flagCfg.OutputLocation, "output-location", "", "S3 location for query results")
	flags.StringVar(&flagCfg.WorkGroup, "work-group", "", "Athena work group")
	flags.StringVar(&flagCfg.Catalog, "catalog", "", "data catalog")
	flags.StringVar(&flagCfg.Database, "database", "", "database (schema)")
	flags.StringArrayVarP(&options, "option", "o", nil, "raw ADBC database option as key=value, repeatable")
	flags.DurationVar(&timeout, "timeout", 0, "give up on the statement after this long (0 waits forever)")
	flags.BoolVar(&metrics, "metrics", false, "print driver metrics to stderr when done")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log driver activity to stderr")
	return cmd
}

// applyFlags copies the flags that were set on the command line over cfg.
func applyFlags(cmd *cobra.Command, cfg, flagCfg *fileConfig) {
	for name, pair := range map[string][2]*string{
		"region":          {&cfg.Region, &flagCfg.Region},
		"profile":         {&cfg.Profile, &flagCfg.Profile},
		"output-location": {&cfg.OutputLocation, &flagCfg.OutputLocation},
		"work-group":      {&cfg.WorkGroup, &flagCfg.WorkGroup},
		"catalog":         {&cfg.Catalog, &flagCfg.Catalog},
		"database":        {&cfg.Database, &flagCfg.Database},
	} {
		if cmd.Flags().Changed(name) {
			*pair[0] = *pair[1]
		}
	}
}

func (a *app) run(ctx context.Context, opts runOptions) (err error) {
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	drv := athena.NewDriver(memory.DefaultAllocator, a.driverOpts...)
	db, err := drv.NewDatabase(opts.dbOpts)
	if err != nil {
		return err
	}
	if dl, ok := db.(adbc.DatabaseLogging); ok {
		level := slog.LevelWarn
		if opts.verbose {
			level = slog.LevelDebug
		}
		dl.SetLogger(slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})))
	}

	var reg *prometheus.Registry
	if opts.metrics {
		reg = prometheus.NewRegistry()
		if err := athena.RegisterMetrics(reg); err != nil {
			return errors.Join(err, db.Close())
		}
	}

	sqlDB := sql.OpenDB(sqldriver.NewConnector(drv, db))
	defer func() {
		err = errors.Join(err, sqlDB.Close())
	}()

	rows, err := sqlDB.QueryContext(ctx, opts.query)
	if err != nil {
		return err
	}
	n, err := writeTSV(a.stdout, rows)
	err = errors.Join(err, rows.Close())
	if opts.verbose {
		_, _ = fmt.Fprintf(a.stderr, "%d rows\n", n)
	}

	if reg != nil {
		err = errors.Join(err, writeMetrics(a.stderr, reg))
	}
	return err
}
