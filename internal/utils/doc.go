// Package utils hosts shared infrastructure for the policymig CLI.
//
// It provides ConfigurationLoader for Viper-backed configuration resolution,
// LoggerFactory for consistent zap logger construction, and
// CommandContextAccessor for passing resolved runtime values through Cobra
// command contexts.
package utils
