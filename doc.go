// Package datajpa is a relational data access layer for members and teams.
//
// Service opens a transaction per unit of work and hands the callback a
// session with the Member and Team repositories. The repositories support
// derived queries parsed from method names, named queries, entity graphs,
// slices and pages, bulk updates and pessimistic locks.
package datajpa
