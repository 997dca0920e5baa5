package uploader

import "context"

// Uploader is the remote artifact store boundary.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteName string) error
}
