// Package log provides the structured logger used across FakeBuster,
// built on top of the standard slog package.
//
// Records pass through a SecureHandler before they are written. It masks
// values that must never reach a log file or terminal:
//   - the detection service API key and Authorization headers
//   - credentials embedded in image and page URLs (signed query parameters,
//     user:password@host)
//   - page text submitted for scoring, which is cut down to a short excerpt
//
// # Usage
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	logger.Info("scored image",
//	    "url", "https://cdn.example/a.jpg?token=abc", // token masked
//	    "score", 0.91,
//	)
package log
