// Package redis wraps go-redis with the service's logging and component
// lifecycle. The channel monitor uses it as its persistent store for
// channel definitions and the processed-video set, so restarts do not
// re-download old uploads.
//
//	redis:
//	  enabled: true
//	  addr: localhost:6379
//	  key_prefix: whisper
package redis
