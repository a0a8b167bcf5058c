package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sweeney/am2120-sensor/internal/logic"
)

// DefaultFirestoreURL is the Firestore REST endpoint.
const DefaultFirestoreURL = "https://firestore.googleapis.com"

// Uploader stores a reading remotely.
type Uploader interface {
	Upload(ctx context.Context, r logic.Reading) error
}

// FirestoreUploader creates one Firestore document per reading.
type FirestoreUploader struct {
	Project    string
	Collection string
	Token      string

	// BaseURL defaults to DefaultFirestoreURL.
	BaseURL string
	// Client defaults to a client with a 10 second timeout.
	Client *http.Client

	// NewID generates document ids. Defaults to random UUIDs.
	NewID func() string
}

var defaultClient = &http.Client{Timeout: 10 * time.Second}

// DocumentURL returns the collection URL with the document id set.
func (u *FirestoreUploader) DocumentURL(id string) string {
	base := u.BaseURL
	if base == "" {
		base = DefaultFirestoreURL
	}
	q := url.Values{"documentId": {id}}
	return fmt.Sprintf("%s/v1/projects/%s/databases/(default)/documents/%s?%s",
		base, url.PathEscape(u.Project), url.PathEscape(u.Collection), q.Encode())
}

// Upload POSTs the reading as a new document. Any non-2xx response is an error.
func (u *FirestoreUploader) Upload(ctx context.Context, r logic.Reading) error {
	body, err := FormatDocument(r)
	if err != nil {
		return fmt.Errorf("format document: %w", err)
	}

	newID := u.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	id := newID()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.DocumentURL(id), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if u.Token != "" {
		req.Header.Set("Authorization", "Bearer "+u.Token)
	}

	client := u.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post document: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
