// Package webui holds the embedded server-rendered pages: stream
// viewer, login, settings, snapshot gallery, and the OAuth2 error
// page. Templates are self-contained; there is no client framework.
package webui

import (
	"embed"
	"html/template"
	"io"

	"github.com/Sbussiso/OpenSentry/internal/config"
)

//go:embed templates/*.html
var files embed.FS

var pages = template.Must(template.ParseFS(files, "templates/*.html"))

// Render writes the named page. Template errors surface to the
// caller so handlers can log them; partial output may already have
// been written.
func Render(w io.Writer, name string, data any) error {
	return pages.ExecuteTemplate(w, name, data)
}

// IndexData feeds the stream viewer page.
type IndexData struct {
	DeviceName string
	Version    string
	User       string
}

// LoginData feeds the local login form. Fallback marks the session as
// having dropped out of OAuth2 mode; OAuth2 offers the SSO link.
type LoginData struct {
	Error    string
	Fallback bool
	Next     string
	OAuth2   bool
}

// SettingsData feeds the settings form, one section per store
// section. Saved names the section a redirect just persisted.
type SettingsData struct {
	DeviceID  string
	Motion    config.Motion
	Snapshots config.Snapshots
	Video     config.Video
	Stream    config.Stream
	Auth      config.Auth
	Saved     string
	Error     string
}

// GalleryData feeds the snapshot gallery shell; entries load from the
// JSON API client-side.
type GalleryData struct {
	DeviceName string
}

// OAuth2ErrorData feeds the 503 provider-unreachable page.
type OAuth2ErrorData struct {
	Message string
	Next    string
}
