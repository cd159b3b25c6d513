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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// cachingGatherer gathers metrics from another Gatherer at most once per TTL.
//
// The metrics endpoint and all plots share it.
type cachingGatherer struct {
	g   prometheus.Gatherer
	l   *zap.Logger
	ttl time.Duration

	rw sync.RWMutex
	t  time.Time
	m  []*dto.MetricFamily
}

// newCachingGatherer returns a new gatherer; ttl <= 0 disables caching.
func newCachingGatherer(g prometheus.Gatherer, ttl time.Duration, l *zap.Logger) *cachingGatherer {
	return &cachingGatherer{
		g:   g,
		l:   l,
		ttl: ttl,
	}
}

// fresh returns cached metrics if they are not older than TTL.
//
// The caller must hold the lock.
func (g *cachingGatherer) fresh() ([]*dto.MetricFamily, bool) {
	if g.ttl <= 0 || g.t.IsZero() || time.Since(g.t) >= g.ttl {
		return nil, false
	}

	return g.m, true
}

// Gather implements prometheus.Gatherer.
//
// It never returns an error. If gathering fails, previously gathered metrics
// are returned and kept until the next attempt.
func (g *cachingGatherer) Gather() ([]*dto.MetricFamily, error) {
	g.rw.RLock()
	m, ok := g.fresh()
	g.rw.RUnlock()

	if ok {
		return m, nil
	}

	g.rw.Lock()
	defer g.rw.Unlock()

	if m, ok = g.fresh(); ok {
		return m, nil
	}

	m, err := g.g.Gather()
	g.t = time.Now()

	if err != nil {
		g.l.Warn("Failed to gather metrics, using previous ones", zap.Error(err), zap.Int("families", len(g.m)))
		return g.m, nil
	}

	g.l.Debug("Gathered metrics", zap.Int("families", len(m)), zap.Duration("ttl", g.ttl))
	g.m = m

	return m, nil
}

// check interfaces
var (
	_ prometheus.Gatherer = (*cachingGatherer)(nil)
)
