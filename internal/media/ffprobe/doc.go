// Package ffprobe runs ffprobe and decodes the stream and container fields
// the media activities need: the primary video stream and an attribute
// summary recorded on the probed metadata.
package ffprobe
