// Package ingest walks source trees and feeds file content into the
// store.
//
// The ingestor owns the file lifecycle: new files are stored, files
// with an unchanged structural hash are skipped, relocated content is
// recognized as a move by the storage layer, and rows whose files have
// vanished from disk are soft-deleted. Files are processed through a
// bounded worker pool; a failure on one file is recorded and the run
// continues.
//
// Parsing is not done here. Symbols, references, and imports arrive
// through the store's registration API from external parsers.
package ingest
