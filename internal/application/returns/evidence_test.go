package returns

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEvidenceStorage struct {
	mock.Mock
}

func (m *mockEvidenceStorage) VerifyEvidence(ctx context.Context, urls []string) error {
	args := m.Called(ctx, urls)
	return args.Error(0)
}

func (m *mockEvidenceStorage) PresignUpload(ctx context.Context, key, contentType string) (returns.EvidenceUpload, error) {
	args := m.Called(ctx, key, contentType)
	return args.Get(0).(returns.EvidenceUpload), args.Error(1)
}

func TestRequestEvidenceUpload(t *testing.T) {
	f := newFixture(t)
	storage := new(mockEvidenceStorage)
	f.orch.SetEvidenceStorage(storage)
	prefix := "evidence/" + f.customerID.String() + "/"

	storage.On("PresignUpload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, prefix) && strings.HasSuffix(key, ".jpg")
	}), "image/jpeg").Return(returns.EvidenceUpload{
		Key:       prefix + "x.jpg",
		UploadURL: "https://s3.example.com/put",
		ExpiresAt: testEpoch.Add(15 * time.Minute),
	}, nil).Once()

	upload, err := f.orch.RequestEvidenceUpload(context.Background(), f.customer, EvidenceUploadRequest{FileName: "Photo.JPG", ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/put", upload.UploadURL)
	storage.AssertExpectations(t)

	tests := []struct {
		name string
		req  EvidenceUploadRequest
	}{
		{"unsupported extension", EvidenceUploadRequest{FileName: "notes.pdf", ContentType: "application/pdf"}},
		{"mismatched content type", EvidenceUploadRequest{FileName: "clip.mp4", ContentType: "image/png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.RequestEvidenceUpload(context.Background(), f.customer, tt.req)
			assert.True(t, errors.Is(err, returns.ErrValidation))
		})
	}

	_, err = f.orch.RequestEvidenceUpload(context.Background(), f.shop, EvidenceUploadRequest{FileName: "a.png", ContentType: "image/png"})
	assert.True(t, errors.Is(err, returns.ErrForbidden))
}

func TestSubmitVerifiesEvidence(t *testing.T) {
	f := newFixture(t)
	storage := new(mockEvidenceStorage)
	f.orch.SetEvidenceStorage(storage)

	req := f.submitRequest("SKU-1")
	req.ImageURLs = []string{"https://cdn.example.com/evidence/a.jpg"}
	req.VideoURL = "https://cdn.example.com/evidence/b.mp4"
	storage.On("VerifyEvidence", mock.Anything, []string{req.ImageURLs[0], req.VideoURL}).
		Return(returns.NewValidationError("evidence not found")).Once()

	_, err := f.orch.SubmitReturnRequest(context.Background(), f.customer, req)
	assert.True(t, errors.Is(err, returns.ErrValidation))

	page, err := f.orch.ListReturnRequests(context.Background(), f.shop, f.storeID, ListReturnRequestsFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}
