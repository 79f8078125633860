// Package events carries job lifecycle notifications from the queue to the
// components that react to them, such as the job archive. The queue emits
// an event without knowing which handlers exist.
//
// The primary components are:
//   - JobEvent: a lifecycle notification about one job
//   - EventHandler: interface for components that handle events
//   - EventEmitter: interface for components that publish events
package events
