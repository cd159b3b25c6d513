// Copyright 2021 FerretDB Inc.
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

// Command meshdb manages MeshDB domains and their objects.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/registry"
	"github.com/meshdb/meshdb/internal/repository/sqlrepo"
	"github.com/meshdb/meshdb/internal/util/ctxutil"
	"github.com/meshdb/meshdb/internal/util/debug"
	"github.com/meshdb/meshdb/internal/util/logging"
	"github.com/meshdb/meshdb/internal/util/must"
	"github.com/meshdb/meshdb/internal/util/observability"
	"github.com/meshdb/meshdb/internal/util/version"
)

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
//nolint:lll // some tags are long
var cli struct {
	URL   string `default:"file:meshdb.db" help:"Backend URL: file:..., postgres://... or mysql://..."`
	Actor string `default:""               help:"Actor key recorded in logs; random if empty."`

	DebugAddr       string        `default:"-"  help:"Listen address for HTTP handlers for metrics, pprof, etc."`
	DebugMetricsTTL time.Duration `default:"1s" help:"How long debug handlers cache gathered metrics; 0 disables caching."`
	OtelTracesURL   string        `default:""   help:"OpenTelemetry OTLP/HTTP traces endpoint (host:port)." name:"otel-traces-url"`

	Log struct {
		Level  string `default:"${default_log_level}" help:"${help_log_level}"`
		Format string `default:"console"              help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	Version struct{} `cmd:"" help:"Print version to stdout and exit."`

	Domains struct{} `cmd:"" help:"List domains."`

	CreateDomain struct {
		File *os.File `arg:"" help:"YAML domain description."`
	} `cmd:"" help:"Create a domain."`

	UpdateDomain struct {
		File *os.File `arg:"" help:"YAML domain description."`
	} `cmd:"" help:"Create or update a domain."`

	DeleteDomain struct {
		Domain string `arg:"" help:"Domain key or name."`
	} `cmd:"" help:"Delete a domain with its objects and links."`

	Insert struct {
		Domain  string   `arg:"" help:"Domain key or name."`
		Objects []string `arg:"" help:"JSON objects with member values."`
	} `cmd:"" help:"Insert objects."`

	Query struct {
		Domain  string   `arg:"" help:"Domain key or name."`
		Where   string   `default:"" help:"JSON predicate."`
		Members []string `default:"" help:"Members to return."`
		Order   []string `default:"" help:"Members to order by; prefix with - for descending order."`
		Limit   int64    `default:"-1" help:"Maximum number of objects to return; negative for all."`
		Offset  int64    `default:"0"  help:"Number of objects to skip."`
	} `cmd:"" help:"Query objects."`

	Count struct {
		Domain string `arg:"" help:"Domain key or name."`
		Where  string `default:"" help:"JSON predicate."`
	} `cmd:"" help:"Count objects."`

	Delete struct {
		Domain string `arg:"" help:"Domain key or name."`
		Where  string `required:"" help:"JSON predicate."`
	} `cmd:"" help:"Delete objects."`

	Link struct {
		A     string   `arg:"" help:"First domain key or name."`
		B     string   `arg:"" help:"Second domain key or name."`
		Set   string   `arg:"" help:"Set object key."`
		Items []string `arg:"" help:"Item object keys."`
	} `cmd:"" help:"Link items to the set."`

	Unlink struct {
		A     string   `arg:"" help:"First domain key or name."`
		B     string   `arg:"" help:"Second domain key or name."`
		Set   string   `arg:"" help:"Set object key."`
		Items []string `arg:"" help:"Item object keys."`
	} `cmd:"" help:"Unlink items from the set."`

	Items struct {
		A   string `arg:"" help:"First domain key or name."`
		B   string `arg:"" help:"Second domain key or name."`
		Set string `arg:"" help:"Set object key."`
	} `cmd:"" help:"List items linked to the set."`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	kongOptions = []kong.Option{
		kong.Vars{
			"default_log_level": defaultLogLevel().String(),

			"enum_log_format": strings.Join(logging.Formats, ","),

			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logging.Formats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
		},
		kong.DefaultEnvars("MESHDB"),
	}
)

func main() {
	kctx := kong.Parse(&cli, kongOptions...)

	if err := run(kctx.Command()); err != nil {
		log.Fatal(err)
	}
}

// defaultLogLevel returns the default log level.
func defaultLogLevel() zapcore.Level {
	if version.Get().DebugBuild {
		return zap.DebugLevel
	}

	return zap.WarnLevel
}

// setupLogger setups zap logger.
func setupLogger() *zap.Logger {
	info := version.Get()

	level, err := zapcore.ParseLevel(cli.Log.Level)
	if err != nil {
		log.Fatal(err)
	}

	logging.Setup(level, cli.Log.Format)
	l := zap.L()

	l.Debug(
		"Starting MeshDB "+info.Version+"...",
		zap.String("version", info.Version),
		zap.String("commit", info.Commit),
		zap.Bool("dirty", info.Dirty),
		zap.Bool("debugBuild", info.DebugBuild),
		zap.Any("buildEnvironment", info.BuildEnvironment),
	)

	if info.DebugBuild {
		l.Info("This is debug build. The performance will be affected.")
	}

	return l
}

// dumpMetrics dumps all Prometheus metrics to stderr.
func dumpMetrics() {
	mfs := must.NotFail(prometheus.DefaultGatherer.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(os.Stderr, mf))
	}
}

// run executes the given command.
func run(command string) error {
	info := version.Get()

	if command == "version" {
		fmt.Fprintln(os.Stdout, "version:", info.Version)
		fmt.Fprintln(os.Stdout, "commit:", info.Commit)
		fmt.Fprintln(os.Stdout, "dirty:", info.Dirty)
		fmt.Fprintln(os.Stdout, "debugBuild:", info.DebugBuild)

		return nil
	}

	// to increase a chance of resource finalizers to spot problems
	if info.DebugBuild {
		defer func() {
			runtime.GC()
			runtime.GC()
		}()
	}

	logger := setupLogger()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	shutdown, err := observability.SetupOtel("meshdb", cli.OtelTracesURL)
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	ctx, stop := ctxutil.SigTerm(context.Background())
	defer stop()

	repo, err := sqlrepo.Open(ctx, cli.URL, logger)
	if err != nil {
		return err
	}

	defer repo.Close()

	reg, err := registry.New(ctx, repo, logger)
	if err != nil {
		return err
	}

	prometheus.MustRegister(repo, reg)

	var wg sync.WaitGroup

	// https://github.com/alecthomas/kong/issues/389
	if cli.DebugAddr != "" && cli.DebugAddr != "-" {
		debugCtx, debugCancel := context.WithCancel(ctx)

		wg.Add(1)

		go func() {
			defer wg.Done()

			l := logger.Named("debug")
			err := debug.RunHandler(
				debugCtx,
				cli.DebugAddr,
				prometheus.DefaultRegisterer,
				prometheus.DefaultGatherer,
				cli.DebugMetricsTTL,
				l,
			)
			if err != nil {
				l.Error("Failed to run debug handler", zap.Error(err))
			}
		}()

		defer wg.Wait()
		defer debugCancel()
	}

	actor := meshkey.New()
	if cli.Actor != "" {
		if actor, err = meshkey.Parse(cli.Actor); err != nil {
			return err
		}
	}

	a := &app{
		reg:   reg,
		actor: actor,
		out:   os.Stdout,
	}

	err = execute(ctx, a, command)

	if info.DebugBuild {
		dumpMetrics()
	}

	return err
}

// execute runs the parsed command.
func execute(ctx context.Context, a *app, command string) error {
	switch command {
	case "domains":
		return a.domains(ctx)

	case "create-domain <file>":
		defer cli.CreateDomain.File.Close()
		return a.createDomain(ctx, cli.CreateDomain.File, false)

	case "update-domain <file>":
		defer cli.UpdateDomain.File.Close()
		return a.createDomain(ctx, cli.UpdateDomain.File, true)

	case "delete-domain <domain>":
		return a.deleteDomain(ctx, cli.DeleteDomain.Domain)

	case "insert <domain> <objects>":
		return a.insert(ctx, cli.Insert.Domain, cli.Insert.Objects)

	case "query <domain>":
		return a.query(ctx, cli.Query.Domain, &queryParams{
			where:   cli.Query.Where,
			members: nonEmpty(cli.Query.Members),
			order:   nonEmpty(cli.Query.Order),
			limit:   cli.Query.Limit,
			offset:  cli.Query.Offset,
		})

	case "count <domain>":
		return a.count(ctx, cli.Count.Domain, cli.Count.Where)

	case "delete <domain>":
		return a.deleteValues(ctx, cli.Delete.Domain, cli.Delete.Where)

	case "link <a> <b> <set> <items>":
		return a.link(ctx, cli.Link.A, cli.Link.B, cli.Link.Set, cli.Link.Items, false)

	case "unlink <a> <b> <set> <items>":
		return a.link(ctx, cli.Unlink.A, cli.Unlink.B, cli.Unlink.Set, cli.Unlink.Items, true)

	case "items <a> <b> <set>":
		return a.items(ctx, cli.Items.A, cli.Items.B, cli.Items.Set)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// nonEmpty removes empty strings left by empty default flag values.
func nonEmpty(ss []string) []string {
	var res []string

	for _, s := range ss {
		if s != "" {
			res = append(res, s)
		}
	}

	return res
}
