// Package policies models the two migrated policy kinds and the transform
// that turns a tenant-specific read representation into a tenant-agnostic
// creation payload.
//
// Settings catalog policies are rebuilt through an allow-list of creation
// fields plus their expanded setting instances. Device configuration
// profiles keep their shape but have every OMA setting rebuilt, resolving
// server-side encrypted values to plaintext through the Graph function
// addressed by policy id and secret reference id.
package policies
