package returns

import (
	"context"
	"path"
	"strings"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/google/uuid"
)

var evidenceExtensions = map[string]string{
	".jpg":  "image/",
	".jpeg": "image/",
	".png":  "image/",
	".webp": "image/",
	".heic": "image/",
	".mp4":  "video/",
	".mov":  "video/",
}

// RequestEvidenceUpload hands a customer a presigned upload slot under
// evidence/<customer id>/. The returned object URL is what the customer later
// submits with the return request.
func (o *Orchestrator) RequestEvidenceUpload(ctx context.Context, actor returns.Actor, req EvidenceUploadRequest) (*returns.EvidenceUpload, error) {
	if actor.Kind != returns.ActorCustomer || actor.CustomerID == uuid.Nil {
		return nil, returns.ErrForbidden
	}
	if o.evidence == nil {
		return nil, returns.NewValidationError("evidence uploads are not enabled")
	}

	ext := strings.ToLower(path.Ext(req.FileName))
	family, ok := evidenceExtensions[ext]
	if !ok {
		return nil, returns.NewValidationError("unsupported evidence file type " + ext)
	}
	if !strings.HasPrefix(strings.ToLower(req.ContentType), family) {
		return nil, returns.NewValidationError("content type " + req.ContentType + " does not match " + ext)
	}

	key := path.Join("evidence", actor.CustomerID.String(), uuid.NewString()+ext)
	upload, err := o.evidence.PresignUpload(ctx, key, req.ContentType)
	if err != nil {
		return nil, err
	}
	return &upload, nil
}
