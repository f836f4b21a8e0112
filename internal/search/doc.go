// Package search ranks knowledge records against free-text queries.
//
// An Index holds one immutable view of the record set at a time. Update swaps
// the view atomically, so a concurrent reader always sees either the whole old
// set or the whole new one. All operations are pure computation; the package
// performs no I/O.
package search
