// Package playback plays decoded audio through a jack output port.
//
// A Source yields mono float32 blocks. OggOpusSource decodes Ogg/Opus files
// with pion/opus and ToneSource generates a sine wave. Player resamples a
// source to the client's rate on an ordinary goroutine and hands samples to
// its Process method through a lock-free Ring:
//
//	Source.Next → Resampler → Ring.Write  |  Ring.Read → jack.AudioOut
//
// Example:
//
//	out, _ := client.RegisterOutputAudioPort("out")
//	p := playback.NewPlayer(out, 16384)
//	_ = jack.SetProcessHandler(client, p)
//	_ = client.Activate()
//	src, _ := playback.NewOggOpusSource(file)
//	err := p.Feed(ctx, src, client.SampleRate())
package playback
