// Package api exposes the job queue over HTTP: job and task submission,
// status, cancellation, finalization and the operational views. Every /api
// route requires a service token carrying the route's scope; error bodies
// carry a trace id and never the internal error text.
package api
