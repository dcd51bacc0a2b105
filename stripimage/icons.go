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
	"math"
	"slices"

	"github.com/fogleman/gg"
)

const (
	IconStar   = "star"
	IconHeart  = "heart"
	IconCoffee = "coffee"
	IconCheck  = "check"
	IconGift   = "gift"
	IconTrophy = "trophy"

	DefaultStampIcon  = IconStar
	DefaultRewardIcon = IconGift
)

// iconFunc draws an icon centered at (cx, cy) fitting a square of side s,
// using the current color of dc
type iconFunc func(dc *gg.Context, cx, cy, s float64)

var builtinIcons = map[string]iconFunc{
	IconStar:   drawStar,
	IconHeart:  drawHeart,
	IconCoffee: drawCoffee,
	IconCheck:  drawCheck,
	IconGift:   drawGift,
	IconTrophy: drawTrophy,
}

// BuiltinIcons returns the names of the vector icons, sorted
func BuiltinIcons() []string {
	ret := make([]string, 0, len(builtinIcons))
	for name := range builtinIcons {
		ret = append(ret, name)
	}
	slices.Sort(ret)
	return ret
}

func lookupIcon(name string, fallback string) iconFunc {
	if f, ok := builtinIcons[name]; ok {
		return f
	}
	return builtinIcons[fallback]
}

func drawStar(dc *gg.Context, cx, cy, s float64) {
	outer := s / 2
	inner := outer * 0.45
	for i := range 10 {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		a := -math.Pi/2 + float64(i)*math.Pi/5
		x := cx + r*math.Cos(a)
		y := cy + r*math.Sin(a)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
	dc.Fill()
}

func drawHeart(dc *gg.Context, cx, cy, s float64) {
	h := s * 0.9
	top := cy - h*0.3
	bottom := cy + h*0.45
	dc.MoveTo(cx, bottom)
	dc.CubicTo(cx-h*0.6, cy+h*0.05, cx-h*0.55, top-h*0.35, cx, top)
	dc.CubicTo(cx+h*0.55, top-h*0.35, cx+h*0.6, cy+h*0.05, cx, bottom)
	dc.ClosePath()
	dc.Fill()
}

func drawCoffee(dc *gg.Context, cx, cy, s float64) {
	cupW := s * 0.55
	cupH := s * 0.5
	left := cx - s*0.38
	top := cy - s*0.12
	dc.DrawRoundedRectangle(left, top, cupW, cupH, s*0.08)
	dc.Fill()
	// Handle
	dc.SetLineWidth(s * 0.08)
	dc.DrawArc(left+cupW, top+cupH*0.4, cupH*0.25, -math.Pi/2, math.Pi/2)
	dc.Stroke()
	// Steam
	dc.SetLineCapRound()
	for i := range 3 {
		x := left + cupW*(0.25+0.25*float64(i))
		dc.MoveTo(x, top-s*0.06)
		dc.CubicTo(x-s*0.06, top-s*0.16, x+s*0.06, top-s*0.22, x, top-s*0.32)
		dc.Stroke()
	}
}

func drawCheck(dc *gg.Context, cx, cy, s float64) {
	dc.SetLineWidth(s * 0.14)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.MoveTo(cx-s*0.32, cy+s*0.02)
	dc.LineTo(cx-s*0.08, cy+s*0.26)
	dc.LineTo(cx+s*0.34, cy-s*0.24)
	dc.Stroke()
}

func drawGift(dc *gg.Context, cx, cy, s float64) {
	boxW := s * 0.8
	boxH := s * 0.5
	left := cx - boxW/2
	top := cy - boxH/2 + s*0.1
	dc.DrawRectangle(left, top, boxW, boxH)
	dc.Fill()
	// Lid
	dc.DrawRectangle(left-s*0.04, top-s*0.14, boxW+s*0.08, s*0.12)
	dc.Fill()
	// Bow
	dc.SetLineWidth(s * 0.07)
	dc.DrawEllipse(cx-s*0.12, top-s*0.22, s*0.12, s*0.07)
	dc.Stroke()
	dc.DrawEllipse(cx+s*0.12, top-s*0.22, s*0.12, s*0.07)
	dc.Stroke()
}

func drawTrophy(dc *gg.Context, cx, cy, s float64) {
	cupW := s * 0.5
	top := cy - s*0.4
	// Bowl
	dc.MoveTo(cx-cupW/2, top)
	dc.LineTo(cx+cupW/2, top)
	dc.CubicTo(cx+cupW/2, top+s*0.35, cx+s*0.08, top+s*0.45, cx, top+s*0.45)
	dc.CubicTo(cx-s*0.08, top+s*0.45, cx-cupW/2, top+s*0.35, cx-cupW/2, top)
	dc.ClosePath()
	dc.Fill()
	// Handles
	dc.SetLineWidth(s * 0.06)
	dc.DrawArc(cx-cupW/2, top+s*0.12, s*0.1, math.Pi/2, 3*math.Pi/2)
	dc.Stroke()
	dc.DrawArc(cx+cupW/2, top+s*0.12, s*0.1, -math.Pi/2, math.Pi/2)
	dc.Stroke()
	// Stem and base
	dc.DrawRectangle(cx-s*0.05, top+s*0.45, s*0.1, s*0.2)
	dc.Fill()
	dc.DrawRoundedRectangle(cx-s*0.22, top+s*0.65, s*0.44, s*0.12, s*0.03)
	dc.Fill()
}
