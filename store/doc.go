// Package store defines the backend contract wrapped by gopref and ships an
// in-memory implementation.
//
// A Backend holds six native kinds of values: booleans, 32-bit and 64-bit
// integers, 32-bit floats, strings and string sets. Everything else is encoded
// by the caller into the string slot.
//
// Change notification:
//
// Backends accept Listener registrations and call OnChange once per mutation,
// after the mutation is visible to readers:
//
//   - Put*: an event carrying the key
//   - Remove: an event carrying the key, even when the key was absent
//   - Clear: a single bulk event with no key
//
// Listeners are invoked synchronously on the mutating goroutine, outside of
// the store's lock. Events from one goroutine arrive in the order of its
// mutations. Events from concurrent mutations may arrive in a different order
// than the mutations were applied; Keys reflects the applied order.
package store
