package imageprocessing

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// ResizeToFit scales an image down so it fits within the given dimensions
// while preserving aspect ratio. Images already inside the box are returned
// as is.
func ResizeToFit(img image.Image, maxWidth, maxHeight int) image.Image {
	if img == nil {
		return nil
	}

	bounds := img.Bounds()
	newWidth, newHeight := GetScaledDimensions(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)
	if newWidth >= bounds.Dx() && newHeight >= bounds.Dy() {
		return img
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	// CatmullRom keeps signature strokes crisp when shrinking
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, xdraw.Over, nil)
	return resized
}

// GetScaledDimensions calculates the scaled dimensions that fit within the target while preserving aspect ratio
func GetScaledDimensions(srcWidth, srcHeight, targetWidth, targetHeight int) (int, int) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return 0, 0
	}
	scaleX := float64(targetWidth) / float64(srcWidth)
	scaleY := float64(targetHeight) / float64(srcHeight)
	scale := scaleX
	if scaleY < scaleX {
		scale = scaleY
	}

	return int(float64(srcWidth) * scale), int(float64(srcHeight) * scale)
}
