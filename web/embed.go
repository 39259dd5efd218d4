// Package web holds the portal's HTML templates and static assets.
package web

import "embed"

// Templates embeds layouts, partials and pages.
//
//go:embed templates/*/*.html
var Templates embed.FS

// Static embeds stylesheets and scripts served under /static/.
//
//go:embed static
var Static embed.FS
