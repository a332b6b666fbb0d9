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

package repository

import (
	"errors"
	"fmt"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/entity"
)

var (
	// ErrNotFound is returned by single-result lookups that match no row.
	ErrNotFound = errors.New("repository: no result")

	// ErrNonUniqueResult is returned by single-result lookups that match more than one row.
	ErrNonUniqueResult = errors.New("repository: query did not return a unique result")

	// ErrConstraintViolation wraps not-null, unique, foreign key and check failures.
	ErrConstraintViolation = errors.New("repository: constraint violation")

	// ErrInvalidSortProperty is returned when a PageRequest sorts on an unmapped property.
	ErrInvalidSortProperty = errors.New("repository: invalid sort property")

	// ErrUnknownAttributePath is returned for entity graphs naming an unknown relation.
	ErrUnknownAttributePath = errors.New("repository: unknown entity graph attribute path")

	// ErrSessionClosed is returned by any use of a committed or rolled back session.
	ErrSessionClosed = errors.New("repository: session is closed")
)

// translateError wraps constraint failures in ErrConstraintViolation and
// leaves every other error untouched. Both stay reachable through errors.Is.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if database.IsConstraintViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConstraintViolation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// validate runs the entity's own checks before a write. A missing required
// value is reported as a constraint violation.
func validate(op string, e entity.Entity) error {
	v, ok := e.(entity.Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrRequiredField):
		return fmt.Errorf("%s: %w: %w", op, ErrConstraintViolation, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
