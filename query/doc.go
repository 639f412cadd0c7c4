// Package query turns repository method names into predicates, keeps the
// catalogue of named statements and resolves entity graphs. Everything is
// parsed and validated once, when a repository is built.
package query
