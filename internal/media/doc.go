// Package media holds the video activities: I-frame thumbnail extraction with
// ffmpeg and AV1 encoding with Drapto. Both download the primary content into
// the activity context's scoped temp space and upload their results as
// supplementary content.
package media
