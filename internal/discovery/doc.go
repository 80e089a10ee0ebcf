// Package discovery scans the repository for collections whose items carry
// extracted text.
//
// The scan pages through a repository-wide search for zip manifests that
// include an EXTRACTED_TEXT entry and attributes each hit to its
// collections, following rel_is_part_of parents when a hit carries no
// direct membership. Progress is checkpointed to <output>.checkpoint after
// every page and the sorted collection list is rewritten alongside, so an
// interrupted scan resumes instead of starting over. A flock on
// <output>.lock rejects concurrent scans against the same output path.
package discovery
