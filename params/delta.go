// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package params holds the wire-format types for the delta stream: the
// envelope that frames every change notification, and the enumerations
// describing what the payload contains.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operation identifies what a delta does to its target entity.
type Operation string

const (
	OpAdd    Operation = "add"
	OpChange Operation = "change"
	OpRemove Operation = "remove"
)

// Known reports whether the operation is part of the protocol contract.
// Anything else indicates a contract break, which the dispatcher treats
// as fatal rather than a data problem.
func (o Operation) Known() bool {
	switch o {
	case OpAdd, OpChange, OpRemove:
		return true
	}
	return false
}

// EntityKind identifies which collection a delta targets.
type EntityKind string

const (
	ServiceKind     EntityKind = "service"
	UnitKind        EntityKind = "unit"
	MachineKind     EntityKind = "machine"
	RelationKind    EntityKind = "relation"
	AnnotationKind  EntityKind = "annotation"
	EnvironmentKind EntityKind = "environment"
)

// Dialect identifies the field-naming convention of a delta payload.
// Two historical server generations speak the same envelope with
// different payload shapes, and both remain in service.
type Dialect string

const (
	// LegacyDialect is the flat, lower-case naming used by older
	// servers ("charm-url", "public-address").
	LegacyDialect Dialect = "legacy"
	// StructuredDialect is the capitalised naming used by current
	// servers ("CharmURL", "PublicAddress").
	StructuredDialect Dialect = "structured"
)

// Delta holds one change to a single entity. On the wire it is a
// three-element JSON array: [kind, operation, payload].
type Delta struct {
	Kind      EntityKind
	Operation Operation
	Dialect   Dialect
	Changes   map[string]interface{}
}

// MarshalJSON implements json.Marshaler.
func (d Delta) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(d.Changes)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	fmt.Fprintf(&buf, "%q,%q,", d.Kind, d.Operation)
	buf.Write(b)
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. The payload dialect is
// determined here, once, so that no handler ever needs to probe field
// shapes itself. An operation outside the protocol contract does not
// fail decoding; rejecting it is the dispatcher's job.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return err
	}
	if len(elements) != 3 {
		return fmt.Errorf("expected 3 elements in delta envelope, got %d", len(elements))
	}
	if err := json.Unmarshal(elements[0], &d.Kind); err != nil {
		return err
	}
	if err := json.Unmarshal(elements[1], &d.Operation); err != nil {
		return err
	}
	// Older servers send a bare id string in place of the payload
	// object for some deltas.
	var id string
	if err := json.Unmarshal(elements[2], &id); err == nil {
		d.Changes = map[string]interface{}{"id": id}
		d.Dialect = LegacyDialect
		return nil
	}
	if err := json.Unmarshal(elements[2], &d.Changes); err != nil {
		return err
	}
	d.Dialect = detectDialect(d.Changes)
	return nil
}

// detectDialect reduces payload-shape sniffing to a single decision at
// ingestion time: a payload with any capitalised field name comes from
// a structured-dialect server.
func detectDialect(changes map[string]interface{}) Dialect {
	for name := range changes {
		if name != "" && name[0] >= 'A' && name[0] <= 'Z' {
			return StructuredDialect
		}
	}
	return LegacyDialect
}
