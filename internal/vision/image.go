package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode decodes JPEG, PNG, GIF, BMP or WebP data and returns the format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("decode image: empty input")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("decode image: zero-sized %s image", format)
	}
	return img, format, nil
}

// Crop copies the region r of img into a new RGBA image anchored at the origin.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func resizeImage(img image.Image, targetW, targetH int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// toCHW resizes img and converts it to CHW float32 with
// pixel = (pixel - mean) / std.
func toCHW(img image.Image, targetW, targetH int, mean, std float32) []float32 {
	resized := resizeImage(img, targetW, targetH).(*image.RGBA)
	w, h := targetW, targetH
	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := resized.PixOffset(x, y)
			idx := y*w + x
			data[0*h*w+idx] = (float32(resized.Pix[off+0]) - mean) / std
			data[1*h*w+idx] = (float32(resized.Pix[off+1]) - mean) / std
			data[2*h*w+idx] = (float32(resized.Pix[off+2]) - mean) / std
		}
	}
	return data
}
