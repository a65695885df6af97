// Package staging persists creation-ready policies as JSON files between the
// export and import phases of a migration run.
//
// Files live under <exportRoot>/<kind subdirectory>/ and are named after the
// sanitized policy display name plus a timestamp, so repeated exports
// accumulate files instead of overwriting earlier runs.
package staging
