// Package resources embeds bundled macro definitions.
package resources

import "embed"

// MacroFiles contains the sample macro definitions shipped with the
// binary. User macros loaded from disk take the same layout: YAML files
// in a "macros" directory.
//
//go:embed macros
var MacroFiles embed.FS
