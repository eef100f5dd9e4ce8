// Package immutable provides the persistent value tree that backs reactor
// state.
//
// Every state snapshot is a tree of Values. Maps and lists are persistent:
// updates return a new value and share every untouched child with the
// original, so a reader holding an older snapshot never observes a partial
// update.
//
// Key design constraints:
//   - Value is a sealed interface; only the types in this package implement it
//   - Map keys are strings, list indices are ints
//   - Equality is structural; identical backing storage short-circuits it
//   - Native wraps Go values that are not structural (opaque to the tree)
//
// This package imports nothing internal. All other internal packages may
// import it.
package immutable
