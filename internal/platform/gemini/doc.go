// Package gemini implements generation.Generator on Google's Gemini image
// models.
//
// The generator turns a task request into a multimodal prompt: the text
// instruction plus every reference asset, the leader's result first, as
// inline image parts. The first image in the response is written to the
// asset store and its reference becomes the task result.
//
// Error handling follows the queue's needs rather than the SDK's:
//   - HTTP 429 becomes a *generation.RateLimitError carrying the provider's
//     retry hint, so the batch processor can pause dispatch.
//   - Safety blocks become generation.ErrContentBlocked and are not retried.
//   - 5xx and transport failures are retried in-call with exponential
//     backoff and jitter, bounded by the caller's context.
package gemini
