package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// NormalizeSubjectBackground flattens the near-white edges the models tend
// to leave around a generated subject into pure white, so every look renders
// on the same clean backdrop. The center of the frame, where the person is,
// stays untouched.
func NormalizeSubjectBackground(imageBytes []byte) ([]byte, error) {
	return whitenFeathered(imageBytes, 240, 4.0, 0.5)
}

// whitenFeathered composites the image over a white canvas through a blurred
// luminance mask. Hard thresholding cuts visible halos into hair and fabric
// edges, the blurred mask does not. A central rectangle is always treated as
// foreground.
func whitenFeathered(imageBytes []byte, threshold uint8, blurSigma float64, centralProtectionRatio float64) ([]byte, error) {
	if centralProtectionRatio < 0.0 || centralProtectionRatio > 1.0 {
		return nil, fmt.Errorf("centralProtectionRatio must be between 0.0 and 1.0")
	}

	originalImg, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := originalImg.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y

	protectedWidth := int(float64(width) * centralProtectionRatio)
	protectedHeight := int(float64(height) * centralProtectionRatio)
	px0 := (width - protectedWidth) / 2
	py0 := (height - protectedHeight) / 2
	px1 := px0 + protectedWidth
	py1 := py0 + protectedHeight

	// white on the mask marks background to be replaced
	mask := image.NewGray(bounds)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x >= px0 && x < px1 && y >= py0 && y < py1 {
				mask.SetGray(x, y, color.Gray{Y: 0})
				continue
			}
			r, g, b, _ := originalImg.At(x, y).RGBA()
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)
			luminance := 0.299*float64(r8) + 0.587*float64(g8) + 0.114*float64(b8)
			if luminance >= float64(threshold) {
				mask.SetGray(x, y, color.Gray{Y: 255})
			} else {
				mask.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}

	// feather the hard mask so the transition has no edge artifacts
	blurredMask := imaging.Blur(mask, blurSigma)

	finalImg := image.NewNRGBA(bounds)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := originalImg.At(x, y).RGBA()
			maskAlpha, _, _, _ := blurredMask.At(x, y).RGBA()

			// white on mask means background, so invert for the blend
			alpha := 1.0 - float64(maskAlpha)/65535.0

			finalR := float64(r)*alpha + 65535.0*(1.0-alpha)
			finalG := float64(g)*alpha + 65535.0*(1.0-alpha)
			finalB := float64(b)*alpha + 65535.0*(1.0-alpha)

			finalImg.SetNRGBA(x, y, color.NRGBA{
				R: uint8(finalR / 257),
				G: uint8(finalG / 257),
				B: uint8(finalB / 257),
				A: uint8(a / 257),
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, finalImg); err != nil {
		return nil, fmt.Errorf("failed to encode final image: %w", err)
	}
	return buf.Bytes(), nil
}
