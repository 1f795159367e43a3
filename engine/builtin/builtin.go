// Package builtin registers the bundled backends.
package builtin

import (
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/engine/fasterwhisper"
	"github.com/kbukum/whisper-subtitle/engine/openai"
	"github.com/kbukum/whisper-subtitle/engine/whispercpp"
	"github.com/kbukum/whisper-subtitle/engine/whisperhttp"
	"github.com/kbukum/whisper-subtitle/process"
)

// Register adds every bundled backend to r. Subprocess backends run
// through runner; nil uses real processes.
func Register(r *engine.Registry, runner process.Runner) {
	r.Register(whispercpp.Name, whispercpp.Factory(runner))
	r.Register(fasterwhisper.Name, fasterwhisper.Factory(runner))
	r.Register(openai.Name, openai.Factory())
	r.Register(whisperhttp.Name, whisperhttp.Factory())
}
