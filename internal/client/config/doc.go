// Package config loads settings for the stylist CLI.
//
// Sources are applied in order: built-in defaults, an optional JSON file
// selected with -c or -config, then flags (-a server URL, -d state database,
// -t request timeout).
package config
