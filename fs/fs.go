// Package appfs holds the static assets shipped with the binary:
// database migrations and email templates.
package appfs

import "embed"

//go:embed all:migrations all:templates
var FS embed.FS
