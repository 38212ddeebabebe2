// Package links holds the shared domain model of the link lifecycle
// engine: link records and their scheduling state, scrape jobs, history
// entries, extraction results, and the narrow interfaces the subsystems
// communicate through.
package links
