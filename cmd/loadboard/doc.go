// Package main hosts the loadboard CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the reference dispatch server, renders
// the live board through the reconciliation engine, and exposes one-shot
// order and crew maintenance commands against the server's HTTP API. It
// centralizes configuration resolution, API address discovery and logger
// setup so subcommands can focus on presentation.
//
// Keep this package lean: add behaviour to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
