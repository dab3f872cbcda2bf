// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing workflow objects (tool clients,
// snapshots, findings payloads) and asserting behaviors. These helpers are
// intentionally minimal and are not intended for production usage.
package testutil
