// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stripimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/blinklabs-io/passsync/loyalty"
)

// RenderIcon draws a built-in icon on a background filled with the design's
// background color. It stands in for pass icons and logos without a custom
// asset.
func RenderIcon(name string, colors loyalty.Colors, size Size) ([]byte, error) {
	width, height := size.Pixels()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid icon size %dx%d", width, height)
	}
	dc := gg.NewContext(width, height)
	dc.SetColor(parseColor(colors.Background, color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}))
	dc.Clear()
	side := float64(min(width, height)) * 0.7
	dc.SetColor(parseColor(colors.Foreground, color.White))
	lookupIcon(name, DefaultStampIcon)(dc, float64(width)/2, float64(height)/2, side)
	return encodePNG(dc.Image())
}

// ScaleAsset decodes a custom asset and fits it into size, preserving aspect
// ratio on a transparent canvas
func ScaleAsset(data []byte, size Size) ([]byte, error) {
	src, err := decodeAsset(data)
	if err != nil {
		return nil, err
	}
	width, height := size.Pixels()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	sb := src.Bounds()
	scale := min(float64(width)/float64(sb.Dx()), float64(height)/float64(sb.Dy()))
	w := max(int(float64(sb.Dx())*scale), 1)
	h := max(int(float64(sb.Dy())*scale), 1)
	x0 := (width - w) / 2
	y0 := (height - h) / 2
	xdraw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, sb, xdraw.Over, nil)
	return encodePNG(dst)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
