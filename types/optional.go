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

package types

// Optional holds a value that may be absent. It is the return type of
// single-result lookups that must not fail when nothing matches.
type Optional[T any] struct {
	value *T
}

func OptionalOf[T any](v *T) Optional[T] { return Optional[T]{value: v} }

func Empty[T any]() Optional[T] { return Optional[T]{} }

func (o Optional[T]) IsPresent() bool { return o.value != nil }

func (o Optional[T]) IsEmpty() bool { return o.value == nil }

func (o Optional[T]) Get() (*T, bool) { return o.value, o.value != nil }

// OrElse returns the value, or other when absent.
func (o Optional[T]) OrElse(other *T) *T {
	if o.value == nil {
		return other
	}
	return o.value
}

// IfPresent calls fn with the value when it is present.
func (o Optional[T]) IfPresent(fn func(*T)) {
	if o.value != nil {
		fn(o.value)
	}
}
