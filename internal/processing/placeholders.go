package processing

import (
	"context"

	"parcel/internal/fileutil"
	"parcel/internal/services"
)

// CopyVariantGenerator stands in for a real image codec: every variant is a
// byte copy of the source.
type CopyVariantGenerator struct{}

// GenerateVariant implements services.ImageVariantGenerator.
func (CopyVariantGenerator) GenerateVariant(ctx context.Context, src, dst string, _ services.VariantSpec) error {
	return fileutil.CopyFile(ctx, src, dst)
}

// CopyPDFConverter stands in for a real document converter.
type CopyPDFConverter struct{}

// ConvertToPDF implements services.PDFConverter.
func (CopyPDFConverter) ConvertToPDF(ctx context.Context, src, dst string) error {
	return fileutil.CopyFile(ctx, src, dst)
}
