// Package graphauth resolves Microsoft Graph tenant credentials.
//
// Client secrets are never stored in configuration files directly; the
// configuration references an environment variable or a file and this
// package resolves the reference at connect time.
package graphauth
