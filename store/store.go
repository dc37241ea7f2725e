// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package store holds the normalized, queryable model of the cluster:
// one collection per entity kind plus the environment singleton, kept
// up to date by the delta layer and observed by the rendering layer.
//
// The store is not safe for concurrent mutation. Deltas are applied in
// arrival order on a single goroutine, and each mutation notifies
// subscribers before it returns, so observers always see mutations in
// the order they happened.
package store

import (
	"fmt"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"

	"github.com/juju/guimodel/params"
)

var logger = loggo.GetLogger("guimodel.store")

// changeTopic carries every mutation made to the database.
const changeTopic = "model.change"

// EnvironmentId is the id reported in change notifications for the
// environment singleton, which is not part of any collection.
const EnvironmentId = "environment"

// Change describes one mutation to the database.
type Change struct {
	Kind params.EntityKind
	Id   string
	Op   params.Operation
}

func entityTopic(kind params.EntityKind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

// Collection is a typed, indexed container for the entities of one
// kind.
type Collection struct {
	kind     params.EntityKind
	entities map[string]*Entity
	notify   func(id string, op params.Operation)
}

// Kind returns the entity kind this collection holds.
func (c *Collection) Kind() params.EntityKind {
	return c.kind
}

// Get returns the entity with the given id, if present.
func (c *Collection) Get(id string) (*Entity, bool) {
	e, ok := c.entities[id]
	return e, ok
}

// Size returns the number of entities in the collection.
func (c *Collection) Size() int {
	return len(c.entities)
}

// Ids returns the ids of all entities in the collection, sorted.
func (c *Collection) Ids() []string {
	ids := set.NewStrings()
	for id := range c.entities {
		ids.Add(id)
	}
	return ids.SortedValues()
}

// Each calls f for every entity in the collection, in id order.
func (c *Collection) Each(f func(*Entity)) {
	for _, id := range c.Ids() {
		f(c.entities[id])
	}
}

// Add creates the entity identified by the "id" attribute, merging the
// remaining attributes into it. Adding an id that already exists
// merges into the existing entity, so replayed deltas are harmless.
func (c *Collection) Add(attrs map[string]interface{}) (*Entity, error) {
	id, _ := attrs["id"].(string)
	if id == "" {
		return nil, errors.NotValidf("%s entity without id", c.kind)
	}
	e, ok := c.entities[id]
	op := params.OpAdd
	if ok {
		op = params.OpChange
	} else {
		e = newEntity(id)
		c.entities[id] = e
	}
	e.setAttrs(attrs)
	c.notify(id, op)
	return e, nil
}

// Update merges the given attributes into the entity with the given
// id. The entity must already exist; callers wanting upsert semantics
// check with Get and Add first.
func (c *Collection) Update(id string, attrs map[string]interface{}) (*Entity, error) {
	e, ok := c.entities[id]
	if !ok {
		return nil, errors.NotFoundf("%s %q", c.kind, id)
	}
	e.setAttrs(attrs)
	c.notify(id, params.OpChange)
	return e, nil
}

// Remove deletes the entity with the given id. Removing an unknown id
// is a no-op: the stream may replay removals for entities never seen.
func (c *Collection) Remove(id string) {
	if _, ok := c.entities[id]; !ok {
		return
	}
	delete(c.entities, id)
	c.notify(id, params.OpRemove)
}

// Environment is the singleton record holding cluster-wide
// annotations. It exists for the database's lifetime and is never
// created or destroyed by the stream.
type Environment struct {
	annotations map[string]string
	notify      func()
}

// Annotations returns a copy of the environment's annotations.
func (e *Environment) Annotations() map[string]string {
	result := make(map[string]string, len(e.annotations))
	for k, v := range e.annotations {
		result[k] = v
	}
	return result
}

// MergeAnnotations merges the given annotations into the environment,
// preserving keys not mentioned.
func (e *Environment) MergeAnnotations(ann map[string]string) {
	for k, v := range ann {
		e.annotations[k] = v
	}
	e.notify()
}

// Database is the aggregate root owning one collection per entity kind
// plus the environment singleton. Every mutation is published to
// subscribers before the mutating call returns.
type Database struct {
	hub         *pubsub.SimpleHub
	collections map[params.EntityKind]*Collection
	environment *Environment
}

// NewDatabase returns an empty database.
func NewDatabase() *Database {
	db := &Database{
		hub:         pubsub.NewSimpleHub(nil),
		collections: make(map[params.EntityKind]*Collection),
	}
	for _, kind := range []params.EntityKind{
		params.ServiceKind,
		params.UnitKind,
		params.MachineKind,
		params.RelationKind,
	} {
		kind := kind
		db.collections[kind] = &Collection{
			kind:     kind,
			entities: make(map[string]*Entity),
			notify: func(id string, op params.Operation) {
				db.publish(kind, id, op)
			},
		}
	}
	db.environment = &Environment{
		annotations: make(map[string]string),
		notify: func() {
			db.publish(params.EnvironmentKind, EnvironmentId, params.OpChange)
		},
	}
	return db
}

// Collection returns the collection holding entities of the given
// kind, or a NotFound error for kinds without one.
func (db *Database) Collection(kind params.EntityKind) (*Collection, error) {
	c, ok := db.collections[kind]
	if !ok {
		return nil, errors.NotFoundf("collection for %q", kind)
	}
	return c, nil
}

// Services returns the service collection.
func (db *Database) Services() *Collection {
	return db.collections[params.ServiceKind]
}

// Units returns the unit collection.
func (db *Database) Units() *Collection {
	return db.collections[params.UnitKind]
}

// Machines returns the machine collection.
func (db *Database) Machines() *Collection {
	return db.collections[params.MachineKind]
}

// Relations returns the relation collection.
func (db *Database) Relations() *Collection {
	return db.collections[params.RelationKind]
}

// Environment returns the environment singleton.
func (db *Database) Environment() *Environment {
	return db.environment
}

// Service returns the service with the given id.
func (db *Database) Service(id string) (Service, bool) {
	e, ok := db.Services().Get(id)
	return Service{e}, ok
}

// Unit returns the unit with the given id.
func (db *Database) Unit(id string) (Unit, bool) {
	e, ok := db.Units().Get(id)
	return Unit{e}, ok
}

// Machine returns the machine with the given id.
func (db *Database) Machine(id string) (Machine, bool) {
	e, ok := db.Machines().Get(id)
	return Machine{e}, ok
}

// Relation returns the relation with the given id.
func (db *Database) Relation(id string) (Relation, bool) {
	e, ok := db.Relations().Get(id)
	return Relation{e}, ok
}

// SubscribeChanges registers a handler called for every mutation made
// to the database, and returns an unsubscribe function. Delivery
// completes before the mutating call returns.
func (db *Database) SubscribeChanges(fn func(Change)) func() {
	return db.hub.Subscribe(changeTopic, func(_ string, data interface{}) {
		change, ok := data.(Change)
		if !ok {
			logger.Criticalf("programming error: topic data expected store.Change, got %T", data)
			return
		}
		fn(change)
	})
}

// SubscribeEntity registers a handler called for every mutation of one
// particular entity, and returns an unsubscribe function.
func (db *Database) SubscribeEntity(kind params.EntityKind, id string, fn func(Change)) func() {
	return db.hub.Subscribe(entityTopic(kind, id), func(_ string, data interface{}) {
		change, ok := data.(Change)
		if !ok {
			logger.Criticalf("programming error: topic data expected store.Change, got %T", data)
			return
		}
		fn(change)
	})
}

// publish sends the change to the global and per-entity topics and
// waits for all subscribers, making mutation-then-notify atomic
// relative to observers. Publish hands back a closure that blocks
// until every subscriber callback has completed.
func (db *Database) publish(kind params.EntityKind, id string, op params.Operation) {
	change := Change{Kind: kind, Id: id, Op: op}
	broad := db.hub.Publish(changeTopic, change)
	narrow := db.hub.Publish(entityTopic(kind, id), change)
	broad()
	narrow()
}
