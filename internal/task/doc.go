// Package task defines generation tasks, their lifecycle and dependency
// groups, and the contracts of the shared queue and the admission limiter.
// Implementations live in internal/platform/redis; the processes that drive
// them live in internal/batch.
package task
