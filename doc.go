// Package wikigraph turns a wikipedia xml dump into an article link
// graph.
//
// The dumps are available from the wikimedia group here:
//    http://dumps.wikimedia.org/
//
// A Downloader fetches a dump with parallel range requests, Decompress
// unpacks it, and ParseFile streams its pages into a Graph whose
// vertices are articles and whose edges are wikilinks, with redirects
// resolved to the page they point at. A SanityChecker samples the
// result and compares it with the live wiki's API.
//
// See the programs in the tools subdirectory for how these fit
// together.
package wikigraph
