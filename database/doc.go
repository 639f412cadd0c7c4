// Package database provides connection management for mysql, postgres and
// sqlite, versioned migrations with inline foreign keys, SQL file seeding,
// driver error classification, query hooks and logging built on top of Bun.
package database
