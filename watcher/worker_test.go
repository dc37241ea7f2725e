// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package watcher_test

import (
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	"github.com/prometheus/client_golang/prometheus"
	gc "gopkg.in/check.v1"

	"github.com/juju/guimodel/params"
	"github.com/juju/guimodel/store"
	"github.com/juju/guimodel/watcher"
)

type WorkerSuite struct {
	testing.IsolationSuite
	logger loggo.Logger
	source *stubSource
	db     *store.Database
	config watcher.Config
}

var _ = gc.Suite(&WorkerSuite{})

func (s *WorkerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.logger = loggo.GetLogger("test")
	s.logger.SetLogLevel(loggo.TRACE)
	s.source = newStubSource()
	s.db = store.NewDatabase()
	s.config = watcher.Config{
		Source:               s.source,
		Database:             s.db,
		Logger:               s.logger,
		PrometheusRegisterer: noopRegisterer{},
	}
}

func (s *WorkerSuite) TestConfigMissingSource(c *gc.C) {
	s.config.Source = nil
	err := s.config.Validate()
	c.Check(err, jc.Satisfies, errors.IsNotValid)
	c.Check(err, gc.ErrorMatches, "missing Source not valid")
}

func (s *WorkerSuite) TestConfigMissingDatabase(c *gc.C) {
	s.config.Database = nil
	err := s.config.Validate()
	c.Check(err, jc.Satisfies, errors.IsNotValid)
	c.Check(err, gc.ErrorMatches, "missing Database not valid")
}

func (s *WorkerSuite) TestConfigMissingLogger(c *gc.C) {
	s.config.Logger = nil
	err := s.config.Validate()
	c.Check(err, jc.Satisfies, errors.IsNotValid)
	c.Check(err, gc.ErrorMatches, "missing Logger not valid")
}

func (s *WorkerSuite) TestConfigMissingRegisterer(c *gc.C) {
	s.config.PrometheusRegisterer = nil
	err := s.config.Validate()
	c.Check(err, jc.Satisfies, errors.IsNotValid)
	c.Check(err, gc.ErrorMatches, "missing PrometheusRegisterer not valid")
}

func (s *WorkerSuite) TestAppliesDeltas(c *gc.C) {
	changes := make(chan store.Change, 16)
	unsub := s.db.SubscribeChanges(func(change store.Change) {
		changes <- change
	})
	defer unsub()

	w, err := watcher.NewWorker(s.config)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	s.source.send(c, []params.Delta{{
		Kind:      params.ServiceKind,
		Operation: params.OpAdd,
		Dialect:   params.StructuredDialect,
		Changes:   map[string]interface{}{"Name": "mysql", "CharmURL": "cs:mysql"},
	}})

	select {
	case change := <-changes:
		c.Check(change, gc.Equals, store.Change{
			Kind: params.ServiceKind, Id: "mysql", Op: params.OpAdd,
		})
	case <-time.After(testing.LongWait):
		c.Fatalf("delta not applied after %s", testing.LongWait)
	}
	svc, ok := s.db.Service("mysql")
	c.Assert(ok, jc.IsTrue)
	c.Check(svc.Charm(), gc.Equals, "cs:mysql")
}

func (s *WorkerSuite) TestSkipsBadRecords(c *gc.C) {
	changes := make(chan store.Change, 16)
	unsub := s.db.SubscribeChanges(func(change store.Change) {
		changes <- change
	})
	defer unsub()

	w, err := watcher.NewWorker(s.config)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	s.source.send(c, []params.Delta{{
		// Missing its identity field; must not halt the stream.
		Kind:      params.UnitKind,
		Operation: params.OpAdd,
		Dialect:   params.StructuredDialect,
		Changes:   map[string]interface{}{"Service": "mysql"},
	}, {
		Kind:      params.MachineKind,
		Operation: params.OpAdd,
		Dialect:   params.StructuredDialect,
		Changes:   map[string]interface{}{"Id": "0"},
	}})

	select {
	case change := <-changes:
		c.Check(change, gc.Equals, store.Change{
			Kind: params.MachineKind, Id: "0", Op: params.OpAdd,
		})
	case <-time.After(testing.LongWait):
		c.Fatalf("delta not applied after %s", testing.LongWait)
	}
	c.Check(s.db.Units().Size(), gc.Equals, 0)
}

func (s *WorkerSuite) TestDiesOnSourceError(c *gc.C) {
	w, err := watcher.NewWorker(s.config)
	c.Assert(err, jc.ErrorIsNil)

	s.source.stop()
	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "watcher was stopped")
}

func (s *WorkerSuite) TestDiesOnUnknownOperation(c *gc.C) {
	w, err := watcher.NewWorker(s.config)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.DirtyKill(c, w)

	s.source.send(c, []params.Delta{{
		Kind:      params.UnitKind,
		Operation: "frobnicate",
		Dialect:   params.StructuredDialect,
		Changes:   map[string]interface{}{"Name": "mysql/0"},
	}})

	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, `operation "frobnicate" not supported`)
}

func (s *WorkerSuite) TestRegistersMetrics(c *gc.C) {
	registry := prometheus.NewRegistry()
	s.config.PrometheusRegisterer = registry

	w, err := watcher.NewWorker(s.config)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	families, err := registry.Gather()
	c.Assert(err, jc.ErrorIsNil)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	c.Check(names, jc.SameContents, []string{
		"guimodel_watcher_batches_total",
		"guimodel_watcher_deltas_applied_total",
		"guimodel_watcher_deltas_skipped_total",
	})
}

// stubSource feeds the worker scripted batches. Stop unblocks Next,
// the way tearing down the API connection unblocks a real watcher.
type stubSource struct {
	batches  chan []params.Delta
	stopped  chan struct{}
	stopOnce sync.Once
}

func newStubSource() *stubSource {
	return &stubSource{
		batches: make(chan []params.Delta),
		stopped: make(chan struct{}),
	}
}

func (s *stubSource) Next() ([]params.Delta, error) {
	select {
	case batch := <-s.batches:
		return batch, nil
	case <-s.stopped:
		return nil, errors.New("watcher was stopped")
	}
}

func (s *stubSource) Stop() error {
	s.stop()
	return nil
}

func (s *stubSource) stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

func (s *stubSource) send(c *gc.C, batch []params.Delta) {
	select {
	case s.batches <- batch:
	case <-time.After(testing.LongWait):
		c.Fatalf("worker did not consume batch after %s", testing.LongWait)
	}
}

type noopRegisterer struct{}

func (noopRegisterer) Register(prometheus.Collector) error {
	return nil
}

func (noopRegisterer) MustRegister(...prometheus.Collector) {}

func (noopRegisterer) Unregister(prometheus.Collector) bool {
	return true
}
