package storage

import (
	"context"
	"errors"

	"github.com/erp/returns/internal/domain/returns"
	infraconfig "github.com/erp/returns/internal/infrastructure/config"
)

// ErrStorageDisabled is returned for uploads when no object storage is configured
var ErrStorageDisabled = errors.New("evidence storage is not configured")

// DisabledEvidenceStorage is used when storage is turned off. Evidence URLs
// are accepted as given and upload slots are refused.
type DisabledEvidenceStorage struct{}

var _ returns.EvidenceStorage = DisabledEvidenceStorage{}

// PresignUpload always fails with ErrStorageDisabled
func (DisabledEvidenceStorage) PresignUpload(context.Context, string, string) (returns.EvidenceUpload, error) {
	return returns.EvidenceUpload{}, ErrStorageDisabled
}

// VerifyEvidence accepts any URL
func (DisabledEvidenceStorage) VerifyEvidence(context.Context, []string) error {
	return nil
}

// New returns S3 evidence storage when enabled, DisabledEvidenceStorage otherwise
func New(cfg *infraconfig.StorageConfig, opts ...S3EvidenceStorageOption) (returns.EvidenceStorage, error) {
	if cfg == nil || !cfg.Enabled {
		return DisabledEvidenceStorage{}, nil
	}
	s, err := NewS3EvidenceStorage(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
