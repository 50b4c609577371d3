package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"
	"math/bits"

	"golang.org/x/image/draw"
)

const (
	dhashSize = 16 // 16x16 difference hash, per spec 4.3 step 7
	maxWidth  = 1920
	maxHeight = 1080
)

// lanczos3 is a 3-lobe Lanczos resampling kernel, built on x/image/draw's
// Kernel extension point (the package ships BiLinear/CatmullRom but not
// Lanczos directly).
var lanczos3 = &draw.Kernel{Support: 3, At: func(x float64) float64 {
	if x == 0 {
		return 1
	}
	if x < -3 || x > 3 {
		return 0
	}
	px := math.Pi * x
	return 3 * math.Sin(px) * math.Sin(px/3) / (px * px)
}}

// DHash computes a 16x16 perceptual difference hash: the image is
// reduced to (dhashSize+1)x dhashSize grayscale pixels, and each bit
// records whether a pixel is brighter than its right-hand neighbor.
func DHash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, dhashSize+1, dhashSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Over, nil)

	var hash uint64
	bit := uint(0)
	for y := 0; y < dhashSize; y++ {
		for x := 0; x < dhashSize; x++ {
			left := small.GrayAt(x, y).Y
			right := small.GrayAt(x+1, y).Y
			if left > right {
				hash |= 1 << bit
			}
			bit++
		}
	}
	return hash
}

// Hamming returns the number of differing bits between two hashes.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// NormalizedDiff converts a Hamming distance into the [0,1] diff_score
// spec 4.3/4.5 reference (distance over the total bit count).
func NormalizedDiff(distance int) float64 {
	return float64(distance) / float64(dhashSize*dhashSize)
}

// Downscale fits img within maxWidth x maxHeight using a Lanczos3
// kernel (spec 4.3 step 7: "downscale to fit within 1920x1080,
// Lanczos"), preserving aspect ratio. Images already within bounds are
// returned unchanged.
func Downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxWidth && h <= maxHeight {
		return img
	}

	scale := float64(maxWidth) / float64(w)
	if hs := float64(maxHeight) / float64(h); hs < scale {
		scale = hs
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	lanczos3.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality (0-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
