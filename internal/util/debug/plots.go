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

package debug

import (
	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// metricValue returns the sum of all gauge or counter values of the named metric family.
//
// It returns 0 if the family is not found.
func metricValue(g prometheus.Gatherer, name string) float64 {
	mfs, _ := g.Gather()

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}

		var res float64

		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_GAUGE:
				res += m.GetGauge().GetValue()
			case dto.MetricType_COUNTER:
				res += m.GetCounter().GetValue()
			case dto.MetricType_SUMMARY, dto.MetricType_UNTYPED, dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
				fallthrough
			default:
				res += m.GetUntyped().GetValue()
			}
		}

		return res
	}

	return 0
}

// series returns a time series for the named metric family.
func series(g prometheus.Gatherer, title, name string) statsviz.TimeSeries {
	return statsviz.TimeSeries{
		Name:    title,
		Unitfmt: "%{y:.4s}",
		GetValue: func() float64 {
			return metricValue(g, name)
		},
	}
}

// plots returns additional statsviz plots.
//
// Plots that fail to build are skipped.
func plots(g prometheus.Gatherer) []statsviz.TimeSeriesPlot {
	configs := []statsviz.TimeSeriesPlotConfig{{
		Name:       "services",
		Title:      "Cached services",
		Type:       statsviz.Scatter,
		InfoText:   "Number of value and link services cached by the domain registry.",
		YAxisTitle: "Services",
		Series: []statsviz.TimeSeries{
			series(g, "value services", "meshdb_registry_value_services"),
			series(g, "link services", "meshdb_registry_link_services"),
		},
	}, {
		Name:       "constructed",
		Title:      "Constructed services",
		Type:       statsviz.Bar,
		InfoText:   "Total number of services constructed by the domain registry.",
		YAxisTitle: "Services",
		Series: []statsviz.TimeSeries{
			series(g, "constructed", "meshdb_registry_constructed_total"),
		},
	}, {
		Name:       "goroutines",
		Title:      "Running goroutines",
		Type:       statsviz.Scatter,
		InfoText:   "Number of goroutines that currently exist.",
		YAxisTitle: "Goroutines",
		Series: []statsviz.TimeSeries{
			series(g, "goroutines", "go_goroutines"),
		},
	}}

	res := make([]statsviz.TimeSeriesPlot, 0, len(configs))

	for _, c := range configs {
		p, err := c.Build()
		if err != nil {
			continue
		}

		res = append(res, p)
	}

	return res
}
