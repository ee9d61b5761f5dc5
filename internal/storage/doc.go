// Package storage owns the on-disk content layout under the upload root and
// the finalize step that claims a staged file into it.
//
// Layout:
//
//	{upload_root}/files/{jobID}_{name}   finalized uploads
//	{upload_root}/processed/             derived artifacts
//	{upload_root}/bundles/{id}.zip       assembled bundles
//
// Public URLs are the path relative to the upload root appended to the
// configured base URL.
package storage
