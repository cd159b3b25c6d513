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

// Package debug provides debug facilities.
package debug

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"slices"
	"text/template"
	"time"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/meshdb/meshdb/internal/util/lazyerrors"
	"github.com/meshdb/meshdb/internal/util/must"
)

// Handler serves debug pages.
type Handler struct {
	mux      *http.ServeMux
	handlers map[string]string
	l        *zap.Logger
}

// NewHandler creates a new debug handler exposing metrics from the given registry.
//
// Gathered metrics are cached for metricsTTL; zero disables caching.
func NewHandler(r prometheus.Registerer, g prometheus.Gatherer, metricsTTL time.Duration, l *zap.Logger) (*Handler, error) {
	stdL, err := zap.NewStdLogAt(l, zap.WarnLevel)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	gatherer := newCachingGatherer(g, metricsTTL, l.Named("gatherer"))

	mux := http.NewServeMux()

	mux.Handle("/debug/metrics", promhttp.InstrumentMetricHandler(
		r, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorLog:          stdL,
			ErrorHandling:     promhttp.ContinueOnError,
			Registry:          r,
			EnableOpenMetrics: true,
		}),
	))

	opts := []statsviz.Option{statsviz.Root("/debug/graphs")}
	for _, p := range plots(gatherer) {
		opts = append(opts, statsviz.TimeseriesPlot(p))
	}

	if err = statsviz.Register(mux, opts...); err != nil {
		return nil, lazyerrors.Error(err)
	}

	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	handlers := map[string]string{
		"/debug/graphs":  "Visualize metrics",
		"/debug/metrics": "Metrics in Prometheus format",
		"/debug/vars":    "Expvar package metrics",
		"/debug/pprof":   "Runtime profiling data for pprof",
	}

	var page bytes.Buffer
	must.NoError(template.Must(template.New("debug").Parse(`
	<html>
	<body>
	<ul>
	{{range $path, $desc := .}}
		<li><a href="{{$path}}">{{$path}}</a>: {{$desc}}</li>
	{{end}}
	</ul>
	</body>
	</html>
	`)).Execute(&page, handlers))

	mux.HandleFunc("/debug", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write(page.Bytes())
	})

	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		http.Redirect(rw, req, "/debug", http.StatusSeeOther)
	})

	return &Handler{
		mux:      mux,
		handlers: handlers,
		l:        l,
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	h.mux.ServeHTTP(rw, req)
}

// Serve runs debug server on the given listener until ctx is canceled.
func (h *Handler) Serve(ctx context.Context, lis net.Listener) {
	stdL := must.NotFail(zap.NewStdLogAt(h.l, zap.WarnLevel))

	s := http.Server{
		Handler:  h,
		ErrorLog: stdL,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	root := fmt.Sprintf("http://%s", lis.Addr())

	h.l.Sugar().Infof("Starting debug server on %s ...", root)

	paths := maps.Keys(h.handlers)
	slices.Sort(paths)

	for _, path := range paths {
		h.l.Sugar().Infof("%s%s - %s", root, path, h.handlers[path])
	}

	go func() {
		if err := s.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			h.l.Error("Debug server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()

	_ = s.Shutdown(stopCtx) //nolint:contextcheck // use new context for cancellation

	_ = s.Close()

	h.l.Info("Debug server stopped")
}

// RunHandler runs debug handler on the given TCP address until ctx is canceled.
//
//nolint:lll // for readability
func RunHandler(ctx context.Context, addr string, r prometheus.Registerer, g prometheus.Gatherer, metricsTTL time.Duration, l *zap.Logger) error {
	h, err := NewHandler(r, g, metricsTTL, l)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return lazyerrors.Error(err)
	}

	h.Serve(ctx, lis)

	return nil
}
