// Package hlogstore defines the core types, interfaces, and shared error codes used by the
// recovery core of a log-structured, hash-indexed key-value store with a hybrid (memory +
// on-disk) append-only log. It provides the logical-address and record wire formats, the
// packed hash-bucket entry format, and the device, index and log interfaces, error codes and
// recovery configuration shared by the `fs`, `hashindex`, and `recovery` subpackages.
//
// This package is intended for internal use within the store: concrete recovery behavior
// lives in `recovery`, filesystem-backed checkpoint and page I/O live in `fs`, and the live
// hash index lives in `hashindex`.
package hlogstore
