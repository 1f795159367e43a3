// Package engine defines the speech-to-text backend contract, the guarded
// Engine wrapper handed to callers, and the Registry that builds engines
// from named factories.
//
// Backends live in subpackages (whispercpp, fasterwhisper, openai,
// whisperhttp); builtin registers all of them.
//
//	reg := engine.NewRegistry(cfg)
//	builtin.Register(reg)
//	eng, err := reg.GetEngine("whispercpp", nil)
//	res := eng.Transcribe(ctx, engine.Request{AudioPath: "talk.wav"})
package engine
