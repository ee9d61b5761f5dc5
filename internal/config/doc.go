// Package config loads, normalizes, and validates parcel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PARCEL_UPLOAD_ROOT and PARCEL_PUBLIC_BASE_URL. The Config type centralizes
// every knob the pipeline, bundle assembler, and CLI need, so the upload root,
// temp directory, and limits are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
