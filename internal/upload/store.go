// Package upload persists profile pictures to local disk or S3-compatible storage.
package upload

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"github.com/google/uuid"
)

// Store saves an object and returns the reference clients use to fetch it
type Store interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImage sniffs data and returns its content type and file extension.
// ok is false for anything other than jpeg, png, gif or webp.
func DetectImage(data []byte) (contentType, ext string, ok bool) {
	contentType = http.DetectContentType(data)
	ext, ok = imageExtensions[contentType]
	return contentType, ext, ok
}

// ProfilePicKey returns a fresh object key for a user's picture
func ProfilePicKey(userID, ext string) string {
	return path.Join("profile", userID, fmt.Sprintf("%s%s", uuid.NewString(), ext))
}
