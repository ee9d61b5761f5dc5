// Package staging owns the temporary per-job directories uploads are written
// into before they are finalized.
//
// Each job gets {temp_dir}/{jobID}/ so concurrent uploads with the same
// client file name never collide. Stager writes the payload there; the cleanup
// helpers reclaim directories left behind by crashed or abandoned runs.
package staging
