// Package pipeline orchestrates the policy migration workflow: exporting
// settings catalog and device configuration policies from a source tenant
// into a staging directory, and importing the staged files into a
// destination tenant.
package pipeline
