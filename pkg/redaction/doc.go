// Package redaction turns detector bounding boxes into a redacted image.
//
// Every detection is clamped against the image bounds (Clamp) and then handed
// to the selected Strategy: ApplyMosaic pixelates the region, ApplyOverlay
// replaces it with a stretched cover image. Strategies write into the
// caller's *image.NRGBA in place; Redact owns that buffer for the duration of
// one call and never touches the source image.
//
// An Overlay strategy without a usable cover is downgraded to Mosaic for the
// whole call and reported through Result.Downgraded.
package redaction
