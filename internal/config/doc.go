// Package config provides configuration loading, merging, and validation
// for the sync server, the field client and the admin CLI.
//
// Configuration is assembled from multiple sources. For every field the
// first source that sets a non-zero value wins:
//  1. Environment variables
//  2. Command-line flags
//  3. JSON config file
//  4. Built-in defaults
//
// The main entry points are [GetStructuredConfig] for the server,
// [GetEnvConfig] for syncctl and [GetClientConfig] for the field client.
package config
