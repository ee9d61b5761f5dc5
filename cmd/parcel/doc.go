// Command parcel ingests files through the upload pipeline, inspects and
// deletes tracked uploads, and assembles finalized uploads into zip bundles.
//
// Configuration is read from ~/.config/parcel/config.toml (or --config), with
// .env and .env.local in the working directory overlaid onto the process
// environment first. Logs go to {log_dir}/parcel.log; pass --verbose to also
// mirror them on stderr.
package main
