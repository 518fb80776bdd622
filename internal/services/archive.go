package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"storefront_back_end/internal/models"
)

var ErrArchiveNotFound = errors.New("archive introuvable")

// objectStore est le sous-ensemble de *minio.Client utilisé par l'archive
type objectStore interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// OrderArchive conserve dans MinIO une copie JSON des commandes purgées
type OrderArchive struct {
	client objectStore
	bucket string
}

func NewOrderArchive(client *minio.Client, bucket string) *OrderArchive {
	return &OrderArchive{client: client, bucket: bucket}
}

// ObjectKey range les archives par mois de création : orders/2026/01/<id>.json
func ObjectKey(orderID string, createdAt time.Time) string {
	return fmt.Sprintf("orders/%s/%s.json", createdAt.UTC().Format("2006/01"), orderID)
}

func (a *OrderArchive) Archive(ctx context.Context, order models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(order.ID, order.CreatedAt),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archivage commande %s : %w", order.ID, err)
	}
	return nil
}

// SignedURL génère un lien de téléchargement temporaire vers une archive
func (a *OrderArchive) SignedURL(ctx context.Context, key string, duration time.Duration) (string, error) {
	if _, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrArchiveNotFound
		}
		return "", err
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, duration, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
