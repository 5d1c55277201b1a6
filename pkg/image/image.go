package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

type Decode func(io.Reader) (image.Image, error)

func getDecoder(file string) (Decode, error) {
	inputExt := filepath.Ext(file)
	var decode Decode
	switch inputExt {
	case ".png":
		decode = png.Decode
	case ".jpg", ".jpeg":
		decode = jpeg.Decode
	case ".webp":
		decode = webp.Decode
	default:
		return nil, fmt.Errorf("image: unsupported extension: %s", inputExt)
	}
	return decode, nil
}

type Encode func(io.Writer, image.Image) error

func getEncoder(file string) (Encode, error) {
	outputExt := filepath.Ext(file)
	var encode Encode
	switch outputExt {
	case ".png":
		encode = png.Encode
	case ".jpg", ".jpeg":
		encode = func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: 90})
		}
	case ".webp":
		// There is no webp encoder, png is used instead
		encode = png.Encode
	default:
		return nil, fmt.Errorf("image: unsupported extension: %s", outputExt)
	}
	return encode, nil
}

// Ext returns the file extension for a MIME type.
func Ext(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// MIME returns the MIME type for a file extension.
func MIME(file string) string {
	switch filepath.Ext(file) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// DecodeBytes decodes image bytes of the given MIME type.
func DecodeBytes(data []byte, mime string) (image.Image, error) {
	decode, err := getDecoder("image" + Ext(mime))
	if err != nil {
		return nil, err
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image: couldn't decode %s: %w", mime, err)
	}
	return img, nil
}

// EncodeBytes encodes the image using the format of the given file name.
func EncodeBytes(img image.Image, file string) ([]byte, error) {
	encode, err := getEncoder(file)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		return nil, fmt.Errorf("image: couldn't encode %s: %w", file, err)
	}
	return buf.Bytes(), nil
}

// ToJPG converts image bytes of the given MIME type to JPEG.
func ToJPG(data []byte, mime string) ([]byte, error) {
	if mime == "image/jpeg" {
		return data, nil
	}
	img, err := DecodeBytes(data, mime)
	if err != nil {
		return nil, err
	}
	// JPEG has no alpha channel, draw over an opaque background
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return EncodeBytes(dst, "image.jpg")
}

// MaxThumbnail is the largest thumbnail size accepted.
const MaxThumbnail = 1024

// Thumbnail scales the image to fit in a square of the given size.
// Images are never scaled up.
func Thumbnail(data []byte, mime string, size int) ([]byte, error) {
	if size <= 0 || size > MaxThumbnail {
		return nil, fmt.Errorf("image: invalid thumbnail size %d (max %d)", size, MaxThumbnail)
	}
	img, err := DecodeBytes(data, mime)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if longest := max(b.Dx(), b.Dy()); size > longest {
		size = longest
	}
	w, h := size, size
	switch {
	case b.Dx() > b.Dy():
		h = b.Dy() * size / b.Dx()
	case b.Dy() > b.Dx():
		w = b.Dx() * size / b.Dy()
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return EncodeBytes(dst, "thumbnail"+Ext(mime))
}
