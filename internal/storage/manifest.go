package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FileEntry describes one uploaded document tracked in the manifest. InfoKey,
// when set, points at the stored information-extraction result for the upload.
type FileEntry struct {
	Slug        string `json:"slug"`
	ObjectKey   string `json:"objectKey,omitempty"`
	InfoKey     string `json:"infoKey,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	UploadedAt  string `json:"uploadedAt,omitempty"`
	Status      string `json:"status,omitempty"`
}

// FormEntry is the per-form progress record kept in the manifest.
type FormEntry struct {
	FormSlug      string `json:"formSlug"`
	FormURL       string `json:"formUrl"`
	SourceKey     string `json:"sourceKey,omitempty"`
	SchemaKey     string `json:"schemaKey,omitempty"`
	FilledKey     string `json:"filledKey,omitempty"`
	FilledFormURL string `json:"filledFormUrl,omitempty"`
	Status        string `json:"status,omitempty"`
	TotalFields   int    `json:"totalFields,omitempty"`
	FilledFields  int    `json:"filledFields,omitempty"`
	SkippedFields int    `json:"skippedFields,omitempty"`
	ErrorFields   int    `json:"errorFields,omitempty"`
	LastJobID     string `json:"lastJobId,omitempty"`
	Message       string `json:"message,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// Manifest is the per-user record of uploads and form-fill progress.
type Manifest struct {
	UserID    string               `json:"userId"`
	UpdatedAt string               `json:"updatedAt"`
	Files     []FileEntry          `json:"files"`
	Forms     map[string]FormEntry `json:"forms"`
}

// NewManifest returns an empty manifest for the given user.
func NewManifest(userID string) *Manifest {
	return &Manifest{
		UserID:    SanitizeUserID(userID),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Files:     []FileEntry{},
		Forms:     map[string]FormEntry{},
	}
}

// UpsertForm merges updates into the form entry for slug, creating it if absent.
// Zero-valued fields in updates leave the existing values untouched, except the
// counter fields which are always taken from updates once totalFields is set.
func (m *Manifest) UpsertForm(slug string, updates FormEntry) {
	if m.Forms == nil {
		m.Forms = map[string]FormEntry{}
	}
	entry := m.Forms[slug]

	entry.FormSlug = slug
	if updates.FormURL != "" {
		entry.FormURL = updates.FormURL
	}
	if updates.SourceKey != "" {
		entry.SourceKey = updates.SourceKey
	}
	if updates.SchemaKey != "" {
		entry.SchemaKey = updates.SchemaKey
	}
	if updates.FilledKey != "" {
		entry.FilledKey = updates.FilledKey
	}
	if updates.FilledFormURL != "" {
		entry.FilledFormURL = updates.FilledFormURL
	}
	if updates.Status != "" {
		entry.Status = updates.Status
	}
	if updates.LastJobID != "" {
		entry.LastJobID = updates.LastJobID
	}
	if updates.Message != "" {
		entry.Message = updates.Message
	}
	if updates.TotalFields > 0 {
		entry.TotalFields = updates.TotalFields
		entry.FilledFields = updates.FilledFields
		entry.SkippedFields = updates.SkippedFields
		entry.ErrorFields = updates.ErrorFields
	}
	entry.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	m.Forms[slug] = entry
}

// ManifestStore loads and saves per-user manifests through a BlobStore.
// Saves are last-write-wins: concurrent savers for the same user can clobber
// each other's form entries. That matches the external store's contract and is
// deliberately not papered over here.
type ManifestStore struct {
	blobs        BlobStore
	manifestName string
}

// NewManifestStore creates a manifest store over the given blob store.
func NewManifestStore(blobs BlobStore, manifestName string) *ManifestStore {
	return &ManifestStore{blobs: blobs, manifestName: manifestName}
}

// Load reads the user's manifest, returning a fresh empty manifest when none
// has been written yet.
func (s *ManifestStore) Load(ctx context.Context, userID string) (*Manifest, error) {
	data, err := s.blobs.Get(ctx, ManifestKey(userID, s.manifestName))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewManifest(userID), nil
		}
		return nil, fmt.Errorf("failed to load manifest for %s: %w", userID, err)
	}

	if len(data) == 0 {
		return NewManifest(userID), nil
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("stored manifest for %s is invalid JSON: %w", userID, err)
	}
	if manifest.Forms == nil {
		manifest.Forms = map[string]FormEntry{}
	}
	return &manifest, nil
}

// Save writes the manifest back, stamping UserID and UpdatedAt.
func (s *ManifestStore) Save(ctx context.Context, userID string, manifest *Manifest) error {
	manifest.UserID = SanitizeUserID(userID)
	manifest.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest for %s: %w", userID, err)
	}

	if err := s.blobs.Put(ctx, ManifestKey(userID, s.manifestName), data, "application/json"); err != nil {
		return fmt.Errorf("failed to save manifest for %s: %w", userID, err)
	}
	return nil
}
