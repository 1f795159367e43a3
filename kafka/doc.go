// Package kafka publishes service events to Kafka through segmentio/kafka-go.
//
// Only the producer side is used: the channel monitor emits
// video.discovered, video.downloaded and video.transcribed events so
// downstream consumers can react to new subtitles.
//
//	kafka:
//	  enabled: true
//	  brokers: ["localhost:9092"]
//	  topic: whisper-subtitle.events
package kafka
