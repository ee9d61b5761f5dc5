// Package bundle assembles finalized uploads into a single zip archive with a
// JSON manifest and optional README and license files.
//
// Jobs without a reachable final file are skipped rather than failing the
// bundle. Any other failure removes partial output and publishes
// bundle:failed.
package bundle
