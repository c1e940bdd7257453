// Package depsdev is a client for the deps.dev v3alpha package metadata API.
//
// Four endpoints are used:
//
//	GET /systems/{system}/packages/{name}                                   -> [Package]
//	GET /systems/{system}/packages/{name}/versions/{version}                -> [Version]
//	GET /systems/{system}/packages/{name}/versions/{version}:dependencies   -> [DependencyGraph]
//	GET /advisories/{key}                                                   -> [Advisory]
//
// Every method returns (nil, nil) when the service has no data for the key:
// on 404 and 400 responses, and when a call fails for any other reason
// (timeouts, 5xx, undecodable bodies, an open circuit breaker). Callers turn
// a nil payload into a coded "no information available" error. Only context
// cancellation and unexpandable URLs surface as errors.
//
// Calls are guarded by a circuit breaker: after a run of consecutive
// failures the client stops calling upstream until the breaker's open
// timeout elapses, then lets a probe through.
package depsdev
