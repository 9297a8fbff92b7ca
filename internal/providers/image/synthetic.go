package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"boongle/internal/domain"
)

// SyntheticGenerator renders deterministic striped PNGs. It needs no network
// and ignores the credential, which makes it the provider for offline runs.
type SyntheticGenerator struct {
	Width  int
	Height int
}

func NewSyntheticGenerator() *SyntheticGenerator {
	return &SyntheticGenerator{Width: 512, Height: 512}
}

func (g *SyntheticGenerator) Generate(ctx context.Context, prompt string, count int, _ string) ([]domain.ImagePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	count = normalizeCount(count)
	images := make([]domain.ImagePayload, 0, count)
	for i := 0; i < count; i++ {
		seed := deterministicSeed(strings.TrimSpace(prompt), i)
		data, err := renderSyntheticImage(g.Width, g.Height, seed)
		if err != nil {
			return nil, err
		}
		images = append(images, domain.ImagePayload{Data: data, MediaType: "image/png"})
	}
	return images, nil
}

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripeHeight := max(16, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("synthetic: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Generator = (*SyntheticGenerator)(nil)
