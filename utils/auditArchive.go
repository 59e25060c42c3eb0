package utils

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC; GCS_CREDENTIALS_JSON is for local runs.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// AuditObjectName builds the object path for an archived planning payload.
func AuditObjectName(kind string, orderNo string, at time.Time) string {
	return fmt.Sprintf("iplan/%s/%s/%s-%d.json", kind, at.UTC().Format("2006/01/02"), orderNo, at.UnixNano())
}

// ArchiveAuditPayload uploads a raw planning payload to IPLAN_AUDIT_BUCKET.
// It is a no-op when the bucket is not configured.
func ArchiveAuditPayload(ctx context.Context, objectName string, payload []byte) error {
	bucketName := strings.TrimSpace(os.Getenv("IPLAN_AUDIT_BUCKET"))
	if bucketName == "" || len(payload) == 0 {
		return nil
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err := wc.Write(payload); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}
