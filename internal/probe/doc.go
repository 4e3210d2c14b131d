// Package probe learns the natural size of images the page markup does not
// size, and reads the EXIF Software and Artist tags that image generators
// and editors leave behind.
//
// Only the first MaxBytes of an image are downloaded. Results are memoized
// per URL and concurrent probes of the same URL share one request.
package probe
