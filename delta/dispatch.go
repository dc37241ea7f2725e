// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package delta applies change notifications from the orchestrator's
// delta stream to the model store. It normalizes the two wire dialects
// still in service onto canonical attribute names, so nothing outside
// this package ever sees a protocol-specific field name.
package delta

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/guimodel/params"
	"github.com/juju/guimodel/store"
)

var logger = loggo.GetLogger("guimodel.delta")

// Dispatcher routes delta records to the handler registered for their
// (kind, dialect) pair.
type Dispatcher struct {
	registry map[registryKey]handler
}

// NewDispatcher returns a dispatcher with the full handler table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{registry: newRegistry()}
}

// Apply applies one delta to the database, reporting whether it was
// applied. Locally recoverable problems — an unknown entity kind or a
// payload missing its identity field — are logged and absorbed so that
// one bad record cannot halt synchronization of the rest of the
// stream. An operation outside the protocol contract is returned as a
// NotSupported error: that is a contract break, not a data problem.
func (d *Dispatcher) Apply(db *store.Database, delta params.Delta) (bool, error) {
	if !delta.Operation.Known() {
		return false, errors.NotSupportedf("operation %q", delta.Operation)
	}
	h, ok := d.registry[registryKey{delta.Kind, delta.Dialect}]
	if !ok {
		logger.Warningf("ignoring delta for unknown entity kind %q (%s dialect)", delta.Kind, delta.Dialect)
		return false, nil
	}
	if err := h(db, delta.Kind, delta.Operation, delta.Changes); err != nil {
		if errors.IsNotValid(err) {
			logger.Warningf("discarding malformed %s delta: %v", delta.Kind, err)
			return false, nil
		}
		if errors.IsNotFound(err) {
			logger.Warningf("ignoring %s delta: %v", delta.Kind, err)
			return false, nil
		}
		return false, errors.Trace(err)
	}
	return true, nil
}
