// Package ui prints colored terminal output for the command line: step
// lines while a handle is analyzed, a progress bar over batch runs, and a
// desktop notification when a batch finishes.
package ui
