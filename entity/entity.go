/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package entity holds the bun models of the member/team schema.
package entity

import (
	"errors"

	"github.com/tomoncle/datajpa/database"
)

var (
	// ErrRequiredField is returned by Validate when a not-null column is empty.
	ErrRequiredField = errors.New("entity: required field is empty")

	// ErrTransientAssociation is returned by Validate when an association
	// points at an entity that has not been persisted yet.
	ErrTransientAssociation = errors.New("entity: association references a transient entity")
)

// Entity is a persisted record with a store-generated int64 identity.
type Entity interface {
	PrimaryKey() int64
}

// AssociationSyncer is implemented by entities whose foreign key columns
// mirror a loaded association.
type AssociationSyncer interface {
	SyncAssociations()
}

// Validator is implemented by entities that check their own state before
// they are written.
type Validator interface {
	Validate() error
}

const (
	teamPriority = iota + 1
	memberPriority
)

func init() {
	database.RegisteredModel(database.NewModelAdapter((*Team)(nil), teamPriority))
	database.RegisteredModel(database.NewModelAdapter((*Member)(nil), memberPriority))
}
