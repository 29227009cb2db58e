package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

var ErrEmptyContent = errors.New("qr content is empty")

// QRGenerator renders voucher ids as PNG QR codes. The code carries the bare
// voucher id so that any scanner app can read it back into a scan request.
type QRGenerator struct {
	size int
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = DefaultSize
	}
	return &QRGenerator{size: size}
}

func (q *QRGenerator) Size() int {
	return q.size
}

func (q *QRGenerator) GeneratePNG(voucherID string) ([]byte, error) {
	if voucherID == "" {
		return nil, ErrEmptyContent
	}
	return qrcode.Encode(voucherID, qrcode.Medium, q.size)
}
