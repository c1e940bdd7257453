// Package resolve implements the cache-first resolvers that sit between the
// deps.dev client and the persistent store.
//
// Each resolver follows the same shape: look in the store, fall back to
// upstream on a miss, write what was fetched back before returning. Writes
// are reconciliations rather than overwrites:
//
//   - [PackageResolver] adds versions only when the cached count differs
//   - [VersionResolver] fills detail, licenses and links once, and replaces
//     the advisory key set only when upstream reports more keys
//   - [GraphResolver] saves a version's graph once; a positive GraphTTL lets
//     it replace graphs older than the TTL
//   - [AdvisoryResolver] treats a key without detail as a miss
//
// [Service] bundles the four resolvers with input validation for the query
// API and the CLI.
package resolve
