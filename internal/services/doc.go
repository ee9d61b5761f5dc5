// Package services defines shared utilities consumed by the pipeline stages
// and the external collaborators they call.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, batch IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the taxonomy the job registry records (validation, scan,
//     processing, io, bundle, cancelled, timeout).
//   - Narrow contracts for the collaborators the pipeline consumes but does
//     not implement: virus scanning, image variant generation, document
//     preview rendering, PDF conversion, and text extraction.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
