// Package store defines the persistence contracts of the job archive and the
// error vocabulary shared by their implementations. Live task state is not
// kept here; it belongs to the coordination store behind task.Queue.
package store
