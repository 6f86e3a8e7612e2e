package domain

// TextExtractor extracts plain text from an uploaded file's raw bytes.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}
