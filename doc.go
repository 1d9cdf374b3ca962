// Package gopref provides typed, observable preferences over an encrypted
// key-value store.
//
// gopref stores values of a closed set of kinds under string keys and lets
// callers follow changes through replaying streams. It wraps any
// store.Backend and registers a single change listener on it.
//
// Core components include:
//   - Codec: maps a Go value to a Kind and its stored representation
//   - Accessor: Put, PutAll, Get, Clear, Count, Keys and KeyValues
//   - Streams: WatchKeys, Watch and WatchCount fan the backend listener out
//     to independent subscriptions that replay a snapshot and then follow
//     live changes
//
// The default value passed to Get decides how a stored value is decoded.
// Absent keys return the default. float64 is stored as decimal text, binary
// values (proto.Message or encoding.BinaryMarshaler) as base64 of a length
// prefixed marshaling, and any other struct, map or slice as JSON.
package gopref
