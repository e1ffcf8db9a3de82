// Package drapto wraps the Drapto Go library so the AV1 encode activity can
// run transcodes and observe structured progress updates. Activities depend on
// the Client interface; tests swap in fakes to avoid running the encoder.
package drapto
