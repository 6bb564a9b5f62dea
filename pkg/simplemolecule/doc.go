// Package simplemolecule provides a process-wide cache for molecular structure
// text (PDB, MOL, SDF, XYZ, FASTA, ...) shared by the nodes of a workflow
// editor, plus a resolver that turns a bare filename into content.
//
// A ContentStore holds one Record per identifier. Identifiers follow the
// "{session}_node_{n}" convention so that records can be grouped by the editor
// session that produced them.
//
// # Resolution Tiers
//
// Resolver.Resolve classifies its input first. Literal molecular text is
// analysed and returned as is. A filename is looked up in order:
//
//	cache-exact          the record stored under the requesting identifier
//	cache-cross-session  any record with the same filename, copied into the
//	                     requesting identifier so the next lookup is exact
//	filesystem           the configured FallbackSource ({root}/{folder}/{filename})
//
// Resolve never returns an error. Failure is reported through
// Metadata.Success and Metadata.Error so callers handle every tier the same way.
//
// The store has no eviction policy. Records live until Clear or ClearAll.
package simplemolecule
