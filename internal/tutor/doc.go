// Package tutor is the core service. It wires retrieval, generation,
// postprocessing, session memory and ingestion behind the operations the
// outer application calls: GenerateResponse, ProcessDocument, IngestURL,
// IngestSyllabus, SystemStatus and DropNamespace.
//
// A Service is safe for concurrent use. Within one session id, completed
// exchanges reach session memory in the order their requests arrived.
package tutor
