// Package monitor watches YouTube channels for new uploads and drives each
// new video through download and transcription on the task scheduler.
//
// Per video:
//
//	discovered -> download_<id> (now) -> transcribe_<id> (now+TranscribeDelay) -> done
//
// Channel definitions and the processed-video set live behind Store: in
// memory by default, or in Redis so a restart does not reprocess uploads.
package monitor
