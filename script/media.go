package script

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
)

func registerMediaOps(reg func(string, NativeFunc)) {
	// image.load decodes a PNG byte string into a list of rows, each row a
	// list of {r, g, b, a} tuples
	reg("image.load", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("image.load requires a byte string")
		}
		img, err := png.Decode(bytes.NewReader(args[0].Str))
		if err != nil {
			return Nil(), fmt.Errorf("UnsupportedImage: %s", err)
		}
		var pix []uint8
		var stride int
		var bounds image.Rectangle
		switch t := img.(type) {
		case *image.NRGBA:
			pix, stride, bounds = t.Pix, t.Stride, t.Rect
		case *image.RGBA:
			pix, stride, bounds = t.Pix, t.Stride, t.Rect
		default:
			return Nil(), fmt.Errorf("UnsupportedImage: not RGBA8 pixel data")
		}
		rows := make([]Value, 0, bounds.Dy())
		for y := 0; y < bounds.Dy(); y++ {
			row := make([]Value, 0, bounds.Dx())
			for x := 0; x < bounds.Dx(); x++ {
				o := y*stride + x*4
				row = append(row, NewList(
					Num(float64(pix[o])),
					Num(float64(pix[o+1])),
					Num(float64(pix[o+2])),
					Num(float64(pix[o+3])),
				))
			}
			rows = append(rows, NewList(row...))
		}
		return NewList(rows...), nil
	})

	// audio.load decodes a PCM WAV byte string into {rate, channels} where
	// channels is a list of per-channel sample lists scaled into [-1, 1]
	reg("audio.load", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("audio.load requires a byte string")
		}
		rate, channels, err := decodeWAV(args[0].Str)
		if err != nil {
			return Nil(), err
		}
		chVals := make([]Value, len(channels))
		for i, ch := range channels {
			samples := make([]Value, len(ch))
			for j, s := range ch {
				samples[j] = Num(s)
			}
			chVals[i] = NewList(samples...)
		}
		return NewList(Num(float64(rate)), NewList(chVals...)), nil
	})
}

// decodeWAV reads a RIFF/WAVE container with 8- or 16-bit PCM data
func decodeWAV(data []byte) (rate uint32, channels [][]float64, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, nil, fmt.Errorf("audio.load: not a RIFF WAVE file")
	}
	var numChannels, bitsPerSample uint16
	var pcm []byte
	haveFmt := false

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return 0, nil, fmt.Errorf("audio.load: truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return 0, nil, fmt.Errorf("audio.load: malformed fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return 0, nil, fmt.Errorf("audio.load: only PCM is supported")
			}
			numChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			rate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word padded
		}
	}
	if !haveFmt || pcm == nil {
		return 0, nil, fmt.Errorf("audio.load: missing fmt or data chunk")
	}
	if numChannels == 0 || (bitsPerSample != 8 && bitsPerSample != 16) {
		return 0, nil, fmt.Errorf("audio.load: unsupported sample format")
	}

	bytesPerSample := int(bitsPerSample) / 8
	frame := bytesPerSample * int(numChannels)
	frames := len(pcm) / frame
	channels = make([][]float64, numChannels)
	for c := range channels {
		channels[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < int(numChannels); c++ {
			o := i*frame + c*bytesPerSample
			if bitsPerSample == 8 {
				// 8-bit WAV is unsigned
				channels[c][i] = (float64(pcm[o]) - 128) / 128
			} else {
				s := int16(binary.LittleEndian.Uint16(pcm[o : o+2]))
				channels[c][i] = float64(s) / 32768
			}
		}
	}
	return rate, channels, nil
}
