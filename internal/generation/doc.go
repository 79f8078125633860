// Package generation defines the boundary between the queue and the external
// image generation provider: the Generator interface, the request derived
// from a task payload and the typed errors a provider reports. A rate-limit
// rejection is a distinct type so callers never classify failures by
// matching error text.
package generation
