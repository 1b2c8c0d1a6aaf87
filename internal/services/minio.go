package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageExtension retourne l'extension associée à un type d'image accepté.
func ImageExtension(contentType string) (string, bool) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// MinioImageStore dépose les images produit dans un bucket MinIO.
type MinioImageStore struct {
	client *minio.Client
	bucket string
}

func NewMinioImageStore(client *minio.Client, bucket string) *MinioImageStore {
	return &MinioImageStore{client: client, bucket: bucket}
}

// Upload enregistre l'image sous un nom unique et retourne son URL publique.
func (m *MinioImageStore) Upload(ctx context.Context, contentType string, r io.Reader, size int64) (string, error) {
	ext, ok := ImageExtension(contentType)
	if !ok {
		return "", fmt.Errorf("type d'image non supporté: %s", contentType)
	}
	object := path.Join("products", uuid.NewString()+ext)

	_, err := m.client.PutObject(ctx, m.bucket, object, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/%s", m.client.EndpointURL().String(), m.bucket, object), nil
}
