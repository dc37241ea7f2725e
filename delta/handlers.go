// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package delta

import (
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/guimodel/params"
	"github.com/juju/guimodel/store"
)

// handler applies one delta payload to the database. Handlers are
// looked up by (kind, dialect) in a table built at dispatcher
// construction; they never probe payload shapes themselves.
type handler func(db *store.Database, kind params.EntityKind, op params.Operation, change map[string]interface{}) error

type registryKey struct {
	kind    params.EntityKind
	dialect params.Dialect
}

func newRegistry() map[registryKey]handler {
	table := map[registryKey]handler{
		{params.ServiceKind, params.StructuredDialect}:    serviceInfo,
		{params.UnitKind, params.StructuredDialect}:       unitInfo,
		{params.MachineKind, params.StructuredDialect}:    machineInfo,
		{params.RelationKind, params.StructuredDialect}:   relationInfo,
		{params.AnnotationKind, params.StructuredDialect}: annotationInfo,
		{params.AnnotationKind, params.LegacyDialect}:     annotationInfo,
	}
	// The legacy dialect's transformation is uniform, so one handler
	// serves every collection-backed kind.
	for _, kind := range []params.EntityKind{
		params.ServiceKind,
		params.UnitKind,
		params.MachineKind,
		params.RelationKind,
	} {
		table[registryKey{kind, params.LegacyDialect}] = legacyInfo
	}
	return table
}

// legacyInfo applies a delta in the legacy flat dialect: translate the
// field names, then upsert or remove by id in the kind's collection.
func legacyInfo(db *store.Database, kind params.EntityKind, op params.Operation, change map[string]interface{}) error {
	attrs := TranslateLegacyFields(change)
	id := stringField(attrs, "id")
	if id == "" {
		return errors.NotValidf("%s delta without id", kind)
	}
	coll, err := db.Collection(kind)
	if err != nil {
		return errors.Trace(err)
	}
	if op == params.OpRemove {
		coll.Remove(id)
		return nil
	}
	attrs["id"] = id
	return upsert(coll, id, attrs)
}

func serviceInfo(db *store.Database, _ params.EntityKind, op params.Operation, change map[string]interface{}) error {
	id := stringField(change, "Name")
	if id == "" {
		return errors.NotValidf("service delta without Name")
	}
	services := db.Services()
	if op == params.OpRemove {
		services.Remove(id)
		return nil
	}
	attrs := map[string]interface{}{"id": id}
	copyString(attrs, "charm", change, "CharmURL")
	copyBool(attrs, "exposed", change, "Exposed")
	return upsert(services, id, attrs)
}

func unitInfo(db *store.Database, _ params.EntityKind, op params.Operation, change map[string]interface{}) error {
	id := stringField(change, "Name")
	if id == "" {
		return errors.NotValidf("unit delta without Name")
	}
	units := db.Units()
	if op == params.OpRemove {
		// Machine lifecycle is independent of the units assigned
		// to it.
		units.Remove(id)
		return nil
	}
	attrs := map[string]interface{}{"id": id}
	copyString(attrs, "service", change, "Service")
	copyString(attrs, "machine", change, "MachineId")
	copyString(attrs, "agent_state", change, "Status")
	copyString(attrs, "public_address", change, "PublicAddress")
	copyString(attrs, "private_address", change, "PrivateAddress")
	if err := upsert(units, id, attrs); err != nil {
		return errors.Trace(err)
	}
	machineId := stringField(change, "MachineId")
	if machineId == "" {
		return nil
	}
	// Early servers reported unit status as a proxy for machine
	// status, so the machine record mirrors it until a machine delta
	// arrives. This also creates the machine if the stream has not
	// mentioned it yet.
	machineAttrs := map[string]interface{}{"id": machineId}
	copyString(machineAttrs, "agent_state", change, "Status")
	copyString(machineAttrs, "instance_state", change, "Status")
	return upsert(db.Machines(), machineId, machineAttrs)
}

func machineInfo(db *store.Database, _ params.EntityKind, op params.Operation, change map[string]interface{}) error {
	id := stringField(change, "Id")
	if id == "" {
		return errors.NotValidf("machine delta without Id")
	}
	machines := db.Machines()
	if op == params.OpRemove {
		machines.Remove(id)
		return nil
	}
	attrs := map[string]interface{}{"id": id}
	copyString(attrs, "instance_id", change, "InstanceId")
	return upsert(machines, id, attrs)
}

func relationInfo(db *store.Database, _ params.EntityKind, op params.Operation, change map[string]interface{}) error {
	id := stringField(change, "Key")
	if id == "" {
		return errors.NotValidf("relation delta without Key")
	}
	relations := db.Relations()
	if op == params.OpRemove {
		relations.Remove(id)
		return nil
	}
	attrs := map[string]interface{}{"id": id}
	// Endpoint descriptors are stored as sent; the store does not
	// interpret them.
	if endpoints, ok := change["Endpoints"]; ok {
		attrs["endpoints"] = endpoints
	}
	return upsert(relations, id, attrs)
}

// annotationInfo merges annotations into the tagged entity. The target
// collection comes from the original tag prefix; environment tags, and
// tags with no prefix matchable to a collection, merge into the
// environment singleton. A target that does not exist yet is skipped
// silently: annotation deltas can race the creation delta of their
// target. The operation is not consulted because the protocol only
// ever sends annotation merges.
func annotationInfo(db *store.Database, _ params.EntityKind, _ params.Operation, change map[string]interface{}) error {
	tag := stringField(change, "Tag")
	if tag == "" {
		tag = stringField(change, "tag")
	}
	if tag == "" {
		return errors.NotValidf("annotation delta without Tag")
	}
	annotations := stringMapField(change, "Annotations")
	if annotations == nil {
		annotations = stringMapField(change, "annotations")
	}
	kind, ok := collectionForTag(tag)
	if !ok || kind == params.EnvironmentKind {
		db.Environment().MergeAnnotations(annotations)
		return nil
	}
	coll, err := db.Collection(kind)
	if err != nil {
		return errors.Trace(err)
	}
	id := CleanEntityTag(tag)
	if _, ok := coll.Get(id); !ok {
		return nil
	}
	_, err = coll.Update(id, map[string]interface{}{"annotations": annotations})
	return errors.Trace(err)
}

// collectionForTag resolves the entity kind named by a tag's prefix.
func collectionForTag(tag string) (params.EntityKind, bool) {
	i := strings.Index(tag, "-")
	if i <= 0 {
		return "", false
	}
	switch kind := params.EntityKind(tag[:i]); kind {
	case params.ServiceKind, params.UnitKind, params.MachineKind, params.EnvironmentKind:
		return kind, true
	}
	return "", false
}

// upsert merges the attributes into the identified entity, creating it
// first if the collection has not seen the id.
func upsert(coll *store.Collection, id string, attrs map[string]interface{}) error {
	if _, ok := coll.Get(id); ok {
		_, err := coll.Update(id, attrs)
		return errors.Trace(err)
	}
	_, err := coll.Add(attrs)
	return errors.Trace(err)
}

// stringField returns the named payload field as a string. Numeric
// ids, which some servers send for machines, are formatted back to
// their string form.
func stringField(change map[string]interface{}, name string) string {
	switch v := change[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func stringMapField(change map[string]interface{}, name string) map[string]string {
	switch m := change[name].(type) {
	case map[string]string:
		return m
	case map[string]interface{}:
		result := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				result[k] = s
			}
		}
		return result
	}
	return nil
}

// copyString copies a payload field into attrs under its canonical
// name, if the field carries a usable value. Absent and null fields
// stay absent so that a change delta never clobbers state it does not
// mention.
func copyString(attrs map[string]interface{}, name string, change map[string]interface{}, field string) {
	switch change[field].(type) {
	case string, float64:
		attrs[name] = stringField(change, field)
	}
}

func copyBool(attrs map[string]interface{}, name string, change map[string]interface{}, field string) {
	if v, ok := change[field].(bool); ok {
		attrs[name] = v
	}
}
