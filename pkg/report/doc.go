// Package report persists analysis reports and reads batch target files.
//
// FileStore writes each report to its own indented JSON file named
// {key}_{YYYYMMDD_HHMMSS}.json. Failures are saved next to them as
// {key}_{YYYYMMDD_HHMMSS}_error.json with a status marker and a run ID, so
// every processed handle leaves an artifact behind. Files are written to a
// temporary name and renamed into place.
//
// Usage:
//
//	store, err := report.NewFileStore("results")
//	if err != nil {
//	    return err
//	}
//	path, err := store.Save("nike", brandReport)
//
// LoadBrands reads the brands file. It accepts JSON or YAML, bare handles or
// objects, and the handle spellings instagram_handle, handle, username and
// instagram.
package report
