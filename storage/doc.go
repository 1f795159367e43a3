// Package storage is the object store behind the transcript archive and
// the download directory: a small streaming interface with a local
// filesystem backend and an S3 backend.
//
// Backends register themselves on import:
//
//	import _ "github.com/kbukum/whisper-subtitle/storage/local"
//	import _ "github.com/kbukum/whisper-subtitle/storage/s3"
//
// Configuration:
//
//	storage:
//	  enabled: true
//	  provider: s3
//	  bucket: transcripts
//	  region: eu-west-1
package storage
