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
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // custom assets may be JPEG
	"io"
	"log/slog"
	"time"

	"github.com/fogleman/gg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	xdraw "golang.org/x/image/draw"

	"github.com/blinklabs-io/passsync/loyalty"
)

var ErrInvalidAsset = errors.New("invalid custom asset")

// MaxAssetDimension bounds each side of a decoded custom asset
const MaxAssetDimension = 4096

// Size is a logical canvas size and the pixel density it is rendered at
type Size struct {
	Name   string
	Width  int
	Height int
	Scale  int
}

func (s Size) Pixels() (int, int) {
	scale := max(s.Scale, 1)
	return s.Width * scale, s.Height * scale
}

var (
	PassKitStrip1x = Size{Name: "1x", Width: 375, Height: 123, Scale: 1}
	PassKitStrip2x = Size{Name: "2x", Width: 375, Height: 123, Scale: 2}
	PassKitStrip3x = Size{Name: "3x", Width: 375, Height: 123, Scale: 3}
	// WalletObjectsHero is the hero image of the second platform
	WalletObjectsHero = Size{Name: "hero", Width: 1032, Height: 336, Scale: 1}
	// WalletObjectsLogo is the square program logo used when a design has no
	// custom logo
	WalletObjectsLogo = Size{Name: "logo", Width: 660, Height: 660, Scale: 1}
)

// PlatformSizes lists every resolution rendered for each platform
var PlatformSizes = map[loyalty.Platform][]Size{
	loyalty.PlatformPassKit: {
		PassKitStrip1x,
		PassKitStrip2x,
		PassKitStrip3x,
	},
	loyalty.PlatformWalletObjects: {WalletObjectsHero},
}

// Config is the visual input of a render. CustomIcon and Background hold
// already-fetched asset bytes.
type Config struct {
	TotalStamps int
	Colors      loyalty.Colors
	StampIcon   string
	RewardIcon  string
	CustomIcon  []byte
	Background  []byte
	Padding     *Padding
}

// ConfigFromDesign builds a render config from a design and its fetched assets
func ConfigFromDesign(
	design *loyalty.CardDesign,
	customIcon []byte,
	background []byte,
) Config {
	return Config{
		TotalStamps: design.TotalStamps,
		Colors:      design.Colors,
		StampIcon:   design.StampIcon,
		RewardIcon:  design.RewardIcon,
		CustomIcon:  customIcon,
		Background:  background,
	}
}

type Generator struct {
	logger  *slog.Logger
	padding Padding
	metrics *generatorMetrics
}

type generatorMetrics struct {
	renders        prometheus.Counter
	renderErrors   prometheus.Counter
	renderDuration prometheus.Histogram
}

type GeneratorOptionFunc func(*Generator)

func WithLogger(logger *slog.Logger) GeneratorOptionFunc {
	return func(g *Generator) {
		g.logger = logger
	}
}

func WithPadding(padding Padding) GeneratorOptionFunc {
	return func(g *Generator) {
		g.padding = padding
	}
}

func WithPromRegistry(registry prometheus.Registerer) GeneratorOptionFunc {
	return func(g *Generator) {
		if registry == nil {
			return
		}
		factory := promauto.With(registry)
		g.metrics = &generatorMetrics{
			renders: factory.NewCounter(prometheus.CounterOpts{
				Name: "passsync_strip_renders_total",
				Help: "number of strip images rendered",
			}),
			renderErrors: factory.NewCounter(prometheus.CounterOpts{
				Name: "passsync_strip_render_errors_total",
				Help: "number of failed strip image renders",
			}),
			renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "passsync_strip_render_seconds",
				Help:    "strip image render duration",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			}),
		}
	}
}

func NewGenerator(opts ...GeneratorOptionFunc) *Generator {
	g := &Generator{
		padding: DefaultPadding,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return g
}

// Render draws a strip for count stamps and returns PNG bytes. Counts outside
// [0, TotalStamps] are clamped.
func (g *Generator) Render(count int, cfg Config, size Size) ([]byte, error) {
	start := time.Now()
	if cfg.Padding == nil {
		cfg.Padding = &g.padding
	}
	data, err := Render(count, cfg, size)
	if g.metrics != nil {
		g.metrics.renderDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			g.metrics.renderErrors.Inc()
		} else {
			g.metrics.renders.Inc()
		}
	}
	if err != nil {
		g.logger.Debug(
			"strip render failed",
			"component", "stripimage",
			"total", cfg.TotalStamps,
			"count", count,
			"size", size.Name,
			"error", err,
		)
		return nil, err
	}
	return data, nil
}

// Render is the stateless form of Generator.Render
func Render(count int, cfg Config, size Size) ([]byte, error) {
	padding := DefaultPadding
	if cfg.Padding != nil {
		padding = *cfg.Padding
	}
	width, height := size.Pixels()
	layout, err := ComputeLayout(
		cfg.TotalStamps,
		width,
		height,
		padding.scaled(size.Scale),
	)
	if err != nil {
		return nil, err
	}
	count = min(max(count, 0), cfg.TotalStamps)

	dc := gg.NewContext(width, height)
	drawBackground(dc, cfg)
	// Undecodable custom icons fall back to the built-in icon
	var customIcon image.Image
	if len(cfg.CustomIcon) > 0 {
		customIcon, _ = decodeAsset(cfg.CustomIcon)
	}
	stampIcon := lookupIcon(cfg.StampIcon, DefaultStampIcon)
	rewardIcon := lookupIcon(cfg.RewardIcon, DefaultRewardIcon)
	last := cfg.TotalStamps - 1
	for _, c := range layout.Circles {
		filled := c.Index < count
		drawStamp(dc, c, filled, c.Index == last, cfg, customIcon, stampIcon, rewardIcon)
	}

	return encodePNG(dc.Image())
}

func drawBackground(dc *gg.Context, cfg Config) {
	dc.SetColor(parseColor(cfg.Colors.Background, color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}))
	dc.Clear()
	if len(cfg.Background) == 0 {
		return
	}
	src, err := decodeAsset(cfg.Background)
	if err != nil {
		return
	}
	dst := image.NewRGBA(image.Rect(0, 0, dc.Width(), dc.Height()))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(src.Bounds(), dst.Bounds()), xdraw.Src, nil)
	dc.DrawImage(dst, 0, 0)
}

// coverRect crops src to the aspect ratio of dst, centered
func coverRect(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw*dh > sh*dw {
		w := sh * dw / dh
		x0 := src.Min.X + (sw-w)/2
		return image.Rect(x0, src.Min.Y, x0+w, src.Max.Y)
	}
	h := sw * dh / dw
	y0 := src.Min.Y + (sh-h)/2
	return image.Rect(src.Min.X, y0, src.Max.X, y0+h)
}

func drawStamp(
	dc *gg.Context,
	c Circle,
	filled bool,
	isReward bool,
	cfg Config,
	customIcon image.Image,
	stampIcon iconFunc,
	rewardIcon iconFunc,
) {
	filledColor := parseColor(cfg.Colors.StampFilled, color.White)
	emptyColor := parseColor(cfg.Colors.StampEmpty, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x66})
	iconColor := parseColor(cfg.Colors.Background, color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff})
	iconSize := c.Diameter * 0.58
	if !filled {
		dc.SetColor(emptyColor)
		dc.SetLineWidth(max(c.Diameter*0.05, 1))
		dc.DrawCircle(c.X, c.Y, c.Radius()-c.Diameter*0.025)
		dc.Stroke()
		if isReward {
			// Hint at the reward on the last slot
			dc.SetColor(emptyColor)
			rewardIcon(dc, c.X, c.Y, iconSize)
		}
		return
	}
	dc.SetColor(filledColor)
	dc.DrawCircle(c.X, c.Y, c.Radius())
	dc.Fill()
	if isReward {
		dc.SetColor(parseColor(cfg.Colors.Accent, iconColor))
		rewardIcon(dc, c.X, c.Y, iconSize)
		return
	}
	if customIcon != nil {
		side := int(iconSize)
		scaled := image.NewRGBA(image.Rect(0, 0, side, side))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), customIcon, customIcon.Bounds(), xdraw.Over, nil)
		dc.DrawImageAnchored(scaled, int(c.X), int(c.Y), 0.5, 0.5)
		return
	}
	dc.SetColor(iconColor)
	stampIcon(dc, c.X, c.Y, iconSize)
}

func decodeAsset(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAsset, err)
	}
	if cfg.Width > MaxAssetDimension || cfg.Height > MaxAssetDimension {
		return nil, fmt.Errorf(
			"%w: %dx%d exceeds %d pixels per side",
			ErrInvalidAsset,
			cfg.Width,
			cfg.Height,
			MaxAssetDimension,
		)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAsset, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidAsset)
	}
	return img, nil
}

// parseColor parses "#rrggbb", falling back to def
func parseColor(s string, def color.Color) color.Color {
	var r, g, b uint8
	if len(s) != 7 || s[0] != '#' {
		return def
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return def
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
