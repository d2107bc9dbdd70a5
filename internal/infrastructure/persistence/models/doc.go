// Package models holds the GORM row types of the billing ledger and their
// mappers to and from the domain. Domain types carry no GORM tags.
//
// The SQL migrations under migrations/ are the source of truth for the schema;
// the tags here only need to be accurate enough for AutoMigrate in tests.
package models
