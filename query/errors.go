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

package query

import "fmt"

// ConfigurationError reports a query definition that cannot be used: an
// unparsable method name, an unknown property, a malformed named query or an
// entity graph naming a missing relation. It is raised while repositories are
// built, never while they serve requests.
type ConfigurationError struct {
	Query  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}

func configErr(query, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Query: query, Reason: fmt.Sprintf(format, args...)}
}
