// Package configs embeds the configuration template written by
// `docindex init`.
package configs

import _ "embed"

// DefaultConfigTemplate is the commented docindex.yaml written by init.
//
//go:embed docindex.example.yaml
var DefaultConfigTemplate string
