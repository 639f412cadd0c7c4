// Package repository provides the persistence context (Session), a generic
// query executor built on Bun and the Member and Team repositories.
//
// A Session is bound to a transaction the caller owns. Repositories created
// on it share its identity map, flush pending changes before each query and
// never begin or commit transactions themselves.
package repository
