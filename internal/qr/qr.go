package qr

import (
	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"

	"classattend/internal/apperr"
	"classattend/internal/media"
)

// Codec encodes student identities into QR images and reads them back.
type Codec struct {
	Size int
}

// New creates a codec producing size x size PNG images.
func New(size int) *Codec {
	if size <= 0 {
		size = 256
	}
	return &Codec{Size: size}
}

// Encode renders text as a PNG QR code.
func (c *Codec) Encode(text string) ([]byte, error) {
	png, err := qrcode.Encode(text, qrcode.Medium, c.Size)
	if err != nil {
		return nil, apperr.Capability("qr encode", err)
	}
	return png, nil
}

// Decode returns the text of the first QR code in image; ok is false when none is found.
func (c *Codec) Decode(image []byte) (string, bool, error) {
	img, err := media.Decode(image)
	if err != nil {
		return "", false, err
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false, apperr.Capability("qr decode", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		// Not found, checksum and format errors all mean no readable code.
		return "", false, nil
	}
	text := result.GetText()
	return text, text != "", nil
}
