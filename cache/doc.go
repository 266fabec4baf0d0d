// Package cache keeps fixed-size blocks of remote archives on disk.
//
// A BlockCache wraps a ByteSource such as an http.Source so repeated
// lookups in the same remote archive, across processes, are served from
// local files instead of new range requests. Blocks are keyed by a
// caller-supplied source ID that must change whenever the content does,
// for example a registry layer digest or a URL plus ETag.
package cache
