// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package store

// Entity is one record in a collection: a document of canonical
// attribute names to values, indexed by id. Attribute names are always
// the canonical internal ones; the delta layer translates wire names
// before anything reaches the store.
type Entity struct {
	id    string
	attrs map[string]interface{}
}

func newEntity(id string) *Entity {
	return &Entity{
		id:    id,
		attrs: make(map[string]interface{}),
	}
}

// Id returns the entity's unique id within its collection.
func (e *Entity) Id() string {
	return e.id
}

// Attr returns the value stored under the given canonical attribute
// name.
func (e *Entity) Attr(name string) (interface{}, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// StringAttr returns the named attribute as a string, or the empty
// string if it is absent or not a string.
func (e *Entity) StringAttr(name string) string {
	v, _ := e.attrs[name].(string)
	return v
}

// BoolAttr returns the named attribute as a bool, or false if it is
// absent or not a bool.
func (e *Entity) BoolAttr(name string) bool {
	v, _ := e.attrs[name].(bool)
	return v
}

// Annotations returns a copy of the entity's annotations.
func (e *Entity) Annotations() map[string]string {
	ann, _ := e.attrs["annotations"].(map[string]string)
	result := make(map[string]string, len(ann))
	for k, v := range ann {
		result[k] = v
	}
	return result
}

// setAttrs merges the given attributes into the entity. The id is
// immutable and annotations merge key by key rather than replacing the
// stored map, so re-applying the same attributes is a no-op.
func (e *Entity) setAttrs(attrs map[string]interface{}) {
	for name, value := range attrs {
		switch name {
		case "id":
		case "annotations":
			e.mergeAnnotations(stringMap(value))
		default:
			e.attrs[name] = value
		}
	}
}

func (e *Entity) mergeAnnotations(ann map[string]string) {
	existing, ok := e.attrs["annotations"].(map[string]string)
	if !ok {
		existing = make(map[string]string)
		e.attrs["annotations"] = existing
	}
	for k, v := range ann {
		existing[k] = v
	}
}

// stringMap coerces an annotations value to map[string]string. Values
// arrive either typed (from Go callers) or as map[string]interface{}
// (from decoded JSON payloads).
func stringMap(value interface{}) map[string]string {
	switch m := value.(type) {
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

// Service wraps an entity in the service collection.
type Service struct {
	*Entity
}

// Charm returns the service's charm reference.
func (s Service) Charm() string {
	return s.StringAttr("charm")
}

// IsExposed reports whether the service is exposed.
func (s Service) IsExposed() bool {
	return s.BoolAttr("exposed")
}

// Unit wraps an entity in the unit collection. Its service and machine
// linkage is held purely by stored id; the referenced entities may not
// exist yet.
type Unit struct {
	*Entity
}

// Service returns the id of the unit's owning service.
func (u Unit) Service() string {
	return u.StringAttr("service")
}

// Machine returns the id of the machine the unit is assigned to, or
// the empty string while unassigned.
func (u Unit) Machine() string {
	return u.StringAttr("machine")
}

// AgentState returns the unit agent's state.
func (u Unit) AgentState() string {
	return u.StringAttr("agent_state")
}

// PublicAddress returns the unit's public network address.
func (u Unit) PublicAddress() string {
	return u.StringAttr("public_address")
}

// PrivateAddress returns the unit's private network address.
func (u Unit) PrivateAddress() string {
	return u.StringAttr("private_address")
}

// Machine wraps an entity in the machine collection.
type Machine struct {
	*Entity
}

// InstanceId returns the provider-assigned instance identifier, if
// the machine has been provisioned.
func (m Machine) InstanceId() string {
	return m.StringAttr("instance_id")
}

// AgentState returns the machine agent's state.
func (m Machine) AgentState() string {
	return m.StringAttr("agent_state")
}

// InstanceState returns the provider instance's state.
func (m Machine) InstanceState() string {
	return m.StringAttr("instance_state")
}

// Relation wraps an entity in the relation collection.
type Relation struct {
	*Entity
}

// Endpoints returns the relation's endpoint descriptors as stored,
// without interpretation.
func (r Relation) Endpoints() interface{} {
	v, _ := r.Attr("endpoints")
	return v
}
