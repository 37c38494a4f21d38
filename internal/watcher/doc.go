// Package watcher turns file system events under category directories into
// poll requests. Events are debounced so that an editor save or a bulk copy
// causes one poll of the affected category rather than one per file.
//
// The periodic poll remains the source of truth; the watcher only shortens
// the delay between a change on disk and its appearance in search results.
package watcher
