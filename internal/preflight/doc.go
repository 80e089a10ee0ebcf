// Package preflight probes the output directory before a harvest starts.
//
// A run that cannot write its artifacts should fail before the first
// network request, not after paging through a collection.
package preflight
