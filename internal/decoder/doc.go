// Package decoder normalizes arbitrary uploaded audio into a mono signal at a
// fixed sample rate. Strategies run in a fixed priority order (beep, riff,
// transcode) and the first success wins; content sniffing only decides which
// format decoder the primary strategy tries first.
package decoder
