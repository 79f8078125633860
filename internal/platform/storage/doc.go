// Package storage keeps generated images and the reference assets that
// tasks condition on. A reference is an opaque string returned by Put and
// accepted by Get; it is what the queue records as a task result.
package storage
