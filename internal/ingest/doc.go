// Package ingest turns source documents into indexed chunks.
//
// A Source is converted to markdown by a Converter picked from the Registry
// by document type, split by the Chunker on markdown header boundaries,
// embedded in batches and written to one index namespace by the Pipeline.
//
// Every error returned by this package wraps ErrIngestion. Ingestion is
// never retried internally.
package ingest
