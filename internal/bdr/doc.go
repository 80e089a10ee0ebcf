// Package bdr is the HTTP client for the Brown Digital Repository API.
//
// This package is used by:
//   - Harvest: collection membership search, item metadata, text downloads
//   - Discovery: repository-wide searches and parent lookups
//   - Zipinfo: item metadata and hasPart traversal
//
// # Endpoints
//
// The client speaks to the public read-only API: /api/search/ (Solr-style
// paged search), /api/items/<pid>/, /api/collections/<pid>/, and the
// /storage/<pid>/<datastream>/ download URLs.
//
// # Retry Behaviour
//
// Every GET retries transport errors and HTTP 5xx with exponential backoff
// (min(2^attempt seconds, 15s) by default, 4 tries). HTTP 403 is a distinct
// non-retried signal (see IsForbidden); other 4xx return immediately as a
// StatusError. A politeness pause is enforced before every request,
// including retries. Context cancellation aborts immediately.
//
// # Entry Points
//
// New: construct a client from Config.
// Client.CollectionMembers: page through a collection's member documents.
// Client.FetchItem / Client.FetchCollection: decode metadata documents.
// Client.ResolveTextLink: locate an item's extracted-text download URL.
// Client.FetchText: download a text payload.
package bdr
