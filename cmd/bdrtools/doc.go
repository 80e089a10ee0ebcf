// Package main hosts the bdrtools CLI entrypoint and command graph.
//
// The Cobra-based command tree maps terminal invocations onto the harvest
// orchestrator, the collection discovery scanner, the zip manifest
// summarizer, and configuration scaffolding. It centralizes configuration
// resolution, API client construction, and structured logging setup so
// subcommands can focus on flags and output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
