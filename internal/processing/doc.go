// Package processing routes a staged upload to a type-specific strategy and
// collects the derived artifacts it produces.
//
// Strategies are keyed by MIME category. The image strategy writes thumbnail
// and optimized variants through a services.ImageVariantGenerator; the
// document strategy extracts text, renders previews, and converts to PDF
// through the matching collaborators. Each requested sub-operation either
// yields an Artifact or an ArtifactFailure, so callers can tell "not
// requested" apart from "requested but failed".
package processing
