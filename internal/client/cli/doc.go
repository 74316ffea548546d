// Package cli provides the interactive stylist command-line client.
//
// App wires configuration, the local SQLite state database, the HTTP client
// and the services behind a small REPL:
//
//	register | login | guest       start a session
//	status                         show account and entitlement
//	tryon <person> <garment> <out> run a virtual try-on, save the result
//	outfit <json-file>             request outfit suggestions
//	history                        list try-ons run from this machine
//	logout | help | exit
//
// Sessions survive restarts because tokens are kept in the state database.
package cli
