/*
Package player plays media streams through pipelines.

Concept

A stream is addressed by URI. The scheme selects the input transport and
the file extension selects the codec:

    /sdcard/a.mp3                  local file
    file:///sdcard/a.wav           local file
    https://example.com/a.mp3      http stream
    embed://tone/0_beep.mp3        embedded resource
    raw://stream.pcm               bytes provided by Config.In

Decoded PCM is passed to Config.Out or to the sink set with WithSink.
Optional resample, channel and bit depth converters are added to the
pipeline when Config enables them.

Pipeline

The first run assembles the pipeline from the player pool:

    input transport -> aud_dec [-> aud_rate_cvt] [-> aud_ch_cvt] [-> aud_bit_cvt] -> output

Later runs reset it. Only the input transport is replaced when the URI
needs another one. RegisterIO, RegisterElement and SetPipeline allow to
build a custom chain, for example with a codec device output.

Execution

Run starts playback and returns immediately, state changes are delivered
to the handler set with SetEvent:

    p, err := player.New(player.Config{Out: write})
    p.SetEvent(func(e player.Event) {
        if e.Type == player.EventMusicInfo {
            fmt.Println(e.Info)
        }
    })
    err = p.Run("/sdcard/a.mp3", nil)

RunToEnd blocks until the stream is finished, stopped or failed:

    err = p.RunToEnd(ctx, "/sdcard/a.mp3", nil)

A player runs one stream at a time, Run fails with pipe.ErrInvalidState
while the previous stream is running or paused.
*/
package player
