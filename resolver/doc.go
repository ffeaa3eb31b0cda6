// Package resolver composes the request, session, and application cache
// tiers into one lookup chain with defined miss propagation and write-back.
//
// A lookup walks TryRequestScope → TryTargetScope → Origin, stopping at the
// first hit. The target scope is chosen by the key's declared affinity
// ([ScopeSession] or [ScopeApplication]) — declared by the caller, never
// inferred, and never widened: session data cannot leak into the
// application cache and vice versa.
//
// An origin hit is written back into every scope the lookup passed through,
// so the next lookup in the same request or session is a cache hit. A busy
// record or unreachable backing store degrades the lookup to the origin
// instead of failing it.
package resolver
