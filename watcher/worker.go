// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package watcher runs the worker that keeps a model store
// synchronized with a delta source: each batch pulled from the source
// is applied to the database in arrival order on a single goroutine.
package watcher

import (
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/tomb.v2"

	"github.com/juju/guimodel/delta"
	"github.com/juju/guimodel/params"
	"github.com/juju/guimodel/store"
)

// Logger describes the logging methods used by the worker.
type Logger interface {
	Errorf(string, ...interface{})
	Warningf(string, ...interface{})
	Tracef(string, ...interface{})
}

// Source provides ordered batches of deltas. Next blocks until deltas
// are available or the source fails; Stop tears the source down,
// unblocking any call to Next. Reconnection and backoff belong to the
// transport behind the source, not to this worker.
type Source interface {
	Next() ([]params.Delta, error)
	Stop() error
}

// Config holds the dependencies of a Worker.
type Config struct {
	Source               Source
	Database             *store.Database
	Logger               Logger
	PrometheusRegisterer prometheus.Registerer
}

// Validate returns an error if the config cannot be relied upon to
// start a worker.
func (config Config) Validate() error {
	if config.Source == nil {
		return errors.NotValidf("missing Source")
	}
	if config.Database == nil {
		return errors.NotValidf("missing Database")
	}
	if config.Logger == nil {
		return errors.NotValidf("missing Logger")
	}
	if config.PrometheusRegisterer == nil {
		return errors.NotValidf("missing PrometheusRegisterer")
	}
	return nil
}

// Worker pumps deltas from a source into a database.
type Worker struct {
	tomb       tomb.Tomb
	config     Config
	dispatcher *delta.Dispatcher
	metrics    *Collector
}

// NewWorker starts and returns a new delta-stream worker.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{
		config:     config,
		dispatcher: delta.NewDispatcher(),
		metrics:    NewMetricsCollector(),
	}
	if err := config.PrometheusRegisterer.Register(w.metrics); err != nil {
		return nil, errors.Trace(err)
	}
	w.tomb.Go(w.loop)
	w.tomb.Go(func() error {
		<-w.tomb.Dying()
		if err := w.config.Source.Stop(); err != nil {
			w.config.Logger.Warningf("stopping delta source: %v", err)
		}
		return nil
	})
	return w, nil
}

func (w *Worker) loop() error {
	defer w.config.PrometheusRegisterer.Unregister(w.metrics)
	for {
		deltas, err := w.config.Source.Next()
		if err != nil {
			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			default:
				return errors.Trace(err)
			}
		}
		w.metrics.batches.Inc()
		w.config.Logger.Tracef("applying %d deltas", len(deltas))
		for _, d := range deltas {
			applied, err := w.dispatcher.Apply(w.config.Database, d)
			if err != nil {
				// A protocol contract break; there is no way
				// to trust the rest of the stream.
				return errors.Trace(err)
			}
			if applied {
				w.metrics.applied.Inc()
			} else {
				w.metrics.skipped.Inc()
			}
		}
	}
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.tomb.Wait()
}

// Report returns information about the worker's store for the
// dependency engine report.
func (w *Worker) Report() map[string]interface{} {
	db := w.config.Database
	return map[string]interface{}{
		"service-count":  db.Services().Size(),
		"unit-count":     db.Units().Size(),
		"machine-count":  db.Machines().Size(),
		"relation-count": db.Relations().Size(),
	}
}
