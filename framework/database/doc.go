// Package database provides the database.sql service: a lazily opened
// sqlx handle configured from a service config section. Handles are shared
// per driver and DSN through a Pool bound in the service manager.
package database
