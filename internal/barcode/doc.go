// Package barcode locates and decodes barcodes in images.
//
// The Detector interface is the only thing callers depend on. The default
// implementation wraps github.com/makiuchi-d/gozxing: QR codes are found with
// its multi-QR reader, and the other symbologies (Data Matrix, Aztec and the
// common 1D codes) by re-running a single-symbol reader on the regions around
// each hit. PDF417 is not supported because gozxing has no reader for it.
//
// Reported boxes cover the printed symbol, not just the points gozxing
// reports inside it, so a padded crop of the box decodes again.
//
// Example:
//
//	det := barcode.NewDetector(barcode.Options{TryHarder: true})
//	found, err := det.Detect(ctx, img)
package barcode
