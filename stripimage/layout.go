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
	"errors"
	"fmt"
	"math"

	"github.com/blinklabs-io/passsync/loyalty"
)

var (
	ErrUnsupportedStampTotal = errors.New("unsupported stamp total")
	ErrCanvasTooSmall        = errors.New("canvas too small for layout")
)

// Rows for 17-24 stamps. Three rows, never more than one stamp difference
// between rows, larger rows first.
var balancedRows = map[int][]int{
	17: {6, 6, 5},
	18: {6, 6, 6},
	19: {7, 6, 6},
	20: {7, 7, 6},
	21: {7, 7, 7},
	22: {8, 7, 7},
	23: {8, 8, 7},
	24: {8, 8, 8},
}

// RowDistribution maps a stamp total to per-row circle counts
func RowDistribution(total int) ([]int, error) {
	switch {
	case total < loyalty.MinTotalStamps || total > loyalty.MaxTotalStamps:
		return nil, fmt.Errorf(
			"%w: %d (must be %d-%d)",
			ErrUnsupportedStampTotal,
			total,
			loyalty.MinTotalStamps,
			loyalty.MaxTotalStamps,
		)
	case total <= 6:
		return []int{total}, nil
	case total <= 16:
		first := (total + 1) / 2
		return []int{first, total - first}, nil
	default:
		rows := balancedRows[total]
		ret := make([]int, len(rows))
		copy(ret, rows)
		return ret, nil
	}
}

// Padding controls spacing in canvas pixels
type Padding struct {
	// Gap is the minimum distance between adjacent circle edges
	Gap float64
	// Edge is the minimum horizontal distance from the canvas edge
	Edge float64
}

var DefaultPadding = Padding{Gap: 8, Edge: 12}

func (p Padding) scaled(scale int) Padding {
	s := float64(max(scale, 1))
	return Padding{Gap: p.Gap * s, Edge: p.Edge * s}
}

type Circle struct {
	Index int
	Row   int
	X     float64
	Y     float64
	// Diameter is identical for every circle of a layout
	Diameter float64
}

func (c Circle) Radius() float64 {
	return c.Diameter / 2
}

type Layout struct {
	Width    int
	Height   int
	Rows     []int
	Diameter float64
	RowGap   float64
	Circles  []Circle
}

// ComputeLayout places total circles on a width x height canvas. It is a pure
// function of its inputs.
func ComputeLayout(
	total int,
	width int,
	height int,
	padding Padding,
) (Layout, error) {
	rows, err := RowDistribution(total)
	if err != nil {
		return Layout{}, err
	}
	widest := 0
	for _, n := range rows {
		widest = max(widest, n)
	}
	w := float64(width)
	h := float64(height)
	nRows := float64(len(rows))
	byWidth := (w - 2*padding.Edge - float64(widest-1)*padding.Gap) / float64(widest)
	byHeight := (h - (nRows+1)*padding.Gap) / nRows
	diameter := math.Floor(math.Min(byWidth, byHeight))
	if diameter <= 0 {
		return Layout{}, fmt.Errorf(
			"%w: %dx%d for %d stamps",
			ErrCanvasTooSmall,
			width,
			height,
			total,
		)
	}
	// Leftover vertical space is spread over the slots above, between and
	// below the rows
	rowGap := (h - nRows*diameter) / (nRows + 1)
	layout := Layout{
		Width:    width,
		Height:   height,
		Rows:     rows,
		Diameter: diameter,
		RowGap:   rowGap,
		Circles:  make([]Circle, 0, total),
	}
	idx := 0
	for r, count := range rows {
		rowWidth := float64(count)*diameter + float64(count-1)*padding.Gap
		startX := (w - rowWidth) / 2
		cy := rowGap*float64(r+1) + diameter*float64(r) + diameter/2
		for i := range count {
			layout.Circles = append(layout.Circles, Circle{
				Index:    idx,
				Row:      r,
				X:        startX + float64(i)*(diameter+padding.Gap) + diameter/2,
				Y:        cy,
				Diameter: diameter,
			})
			idx++
		}
	}
	return layout, nil
}

// IsRewardState reports whether a card has reached its reward
func IsRewardState(count int, total int) bool {
	return total > 0 && count >= total
}
