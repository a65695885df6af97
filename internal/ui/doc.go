// Package ui renders human-readable progress messages for migration runs.
package ui
