package app

import "github.com/campuskit/qrattend/internal/qr"

// EncoderConfig converts the QR settings into the encoder package representation.
func (c *Config) EncoderConfig() qr.Config {
	return qr.Config{
		BaseURL:    c.Server.BaseURL,
		StorageDir: c.QR.StorageDir,
		PublicPath: c.QR.PublicPath,
		ImageSize:  c.QR.ImageSize,
	}
}
