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

import "github.com/pkg/errors"

var (
	// ErrNotManaged is returned when an operation needs an entity that the
	// session does not track, e.g. deleting a transient or detached entity.
	ErrNotManaged = errors.New("entity is not managed by the session")
	// ErrNonUniqueResult is returned by single-result queries matching more
	// than one row.
	ErrNonUniqueResult = errors.New("query did not return a unique result")
	// ErrTransient is returned when an entity without a key is used where a
	// persistent one is required.
	ErrTransient = errors.New("entity has no identity yet")
)
