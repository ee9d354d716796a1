// Package checkpoint records progress through a batch of brands or users so
// an interrupted run can resume.
//
// A checkpoint tracks which handles completed (with the report path) and
// which failed (with the error text). Resumed runs skip completed handles and
// retry failed ones.
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: $XDG_DATA_HOME/igaudience/checkpoints/ or ~/.local/share/igaudience/checkpoints/
//   - macOS: ~/Library/Application Support/igaudience/checkpoints/
//   - Windows: %APPDATA%/igaudience/checkpoints/
//
// Files are written to a temporary path, synced and renamed into place.
package checkpoint
