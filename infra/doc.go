// Package infra holds the adapters behind the core interfaces: MQTT queue
// and RabbitMQ plan publishers, Postgres and SQLite stores, metrics sinks,
// Sentry monitoring and the zerolog logger. Adapters import core, never the
// reverse.
package infra
