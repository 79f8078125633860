// Package batch runs the worker side of the queue: a timed control loop that
// checks out bounded batches and executes them in parallel under the global
// admission limiter, plus a sweeper that reclaims tasks whose worker lease
// has expired.
package batch
