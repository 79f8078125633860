// Package mocks provides shared mock implementations for testing.
//
// Mocks here use function fields for behavior and record their calls, so a
// test can script a response and then assert on what the code under test
// sent:
//
//	gen := &mocks.MockGenerator{
//	    GenerateFn: func(ctx context.Context, req generation.Request) (string, error) {
//	        return "", &generation.RateLimitError{RetryAfter: time.Minute}
//	    },
//	}
//	// run the processor...
//	assert.Equal(t, 1, gen.CallCount())
package mocks
