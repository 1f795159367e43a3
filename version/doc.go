// Package version reports build information set through -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/whisper-subtitle/version.Version=v1.2.0"
package version
