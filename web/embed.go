package web

import "embed"

// Templates embeds HTML templates: layouts, partials, pages, documents and emails.
//
//go:embed templates
var Templates embed.FS

// Static embeds static assets.
//
//go:embed static
var Static embed.FS
