package constants

const (
	ContentTypeJSON  = "application/json"
	ContentTypeText  = "text/plain"
	ContentTypeOctet = "application/octet-stream"
	ContentTypeHeader = "Content-Type"
)
