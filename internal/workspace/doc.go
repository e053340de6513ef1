// Package workspace manages the scratch directories subprocess filters run in.
//
// Every invocation gets its own directory under the manager's base
// (e.g. docpipe-py-3f2a9c). The directory is populated with the step input and
// the outputs of completed children, tracks which files the engine wrote, and
// is removed by Cleanup regardless of how the invocation ended. A manager in
// keep mode leaves directories in place for debugging.
package workspace
