// Package preflight provides readiness checks for the filesystem paths and
// job store that parcel depends on.
//
// These checks run in two contexts:
//   - The CLI "parcel check" command renders every result as a table.
//   - App construction calls RunAll and refuses to start when a required
//     directory is unusable.
//
// The job store lock check only runs for the sqlite backend.
package preflight
