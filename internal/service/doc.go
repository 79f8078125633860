// Package service contains the producer-facing use cases of the queue:
// submitting jobs, reading their status, cancelling and finalizing them, and
// the operational views of the queue and the admission limiter.
//
// Services receive their dependencies through constructor injection and
// depend on the task.Queue and store.JobArchiveStore contracts, never on the
// Redis or Postgres implementations behind them.
package service
