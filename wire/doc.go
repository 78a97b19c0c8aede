// Package wire defines the JSON-RPC 2.0 message envelope exchanged with
// agent subprocesses, the payload types for every method the bridge speaks,
// and the three-way classification (response / request / notification) that
// drives the inbound dispatcher.
//
// Two boundary rules live here so the rest of the bridge never has to think
// about them:
//
//   - Request ids arrive from the wire as either JSON numbers or strings.
//     They are converted to int64 exactly once, at decode time.
//   - session/update notifications are decoded into an explicit set of
//     update kinds. An unrecognized kind becomes UpdateUnknown with the raw
//     tag preserved, so callers can log it instead of silently merging it
//     into a fallback branch.
package wire
