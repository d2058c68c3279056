package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	cldconfig "github.com/cloudinary/cloudinary-go/v2/config"
)

// RawUploader is the part of the Cloudinary upload API the archiver uses.
type RawUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// Cloudinary stores reports as raw resources.
type Cloudinary struct {
	uploader RawUploader
	folder   string
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cfg, err := cldconfig.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary archive: %w", err)
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, fmt.Errorf("cloudinary archive: %w", err)
	}
	if folder == "" {
		folder = "boohpay/reconciliation"
	}
	return &Cloudinary{uploader: up, folder: folder}, nil
}

func (c *Cloudinary) Archive(ctx context.Context, key string, body []byte) (string, error) {
	publicID := strings.TrimSuffix(strings.TrimLeft(key, "/"), ".json")
	res, err := c.uploader.Upload(ctx, bytes.NewReader(body), uploader.UploadParams{
		Folder:       c.folder,
		PublicID:     publicID,
		ResourceType: "raw",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload %s: %s", publicID, res.Error.Message)
	}
	return res.SecureURL, nil
}
