package ingestor

import "time"

// BinaryRequest describes the HTTP request that retrieves an asset's binary.
type BinaryRequest struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// SourceData is the metadata extracted from the source for one asset.
type SourceData struct {
	SourceAssetID  string         `json:"sourceAssetId"`
	SourceType     string         `json:"sourceType"`
	SourceID       string         `json:"sourceId"`
	Name           string         `json:"name,omitempty"`
	Size           int64          `json:"size,omitempty"`
	Created        *time.Time     `json:"created,omitempty"`
	CreatedBy      string         `json:"createdBy,omitempty"`
	LastModified   *time.Time     `json:"lastModified,omitempty"`
	LastModifiedBy string         `json:"lastModifiedBy,omitempty"`
	Path           string         `json:"path,omitempty"`
	Binary         *BinaryRequest `json:"binary,omitempty"`
}

// IngestionRequest is one asset submitted for ingestion.
type IngestionRequest struct {
	Data    SourceData     `json:"data"`
	Binary  *BinaryRequest `json:"binary,omitempty"`
	BatchID string         `json:"batchId,omitempty"`
}

// IngestionResponse reports whether the ingestion service accepted an asset.
type IngestionResponse struct {
	Accepted bool          `json:"accepted"`
	Reason   *RejectReason `json:"reason,omitempty"`
}

// RejectReason carries the final response of a rejected submission. Body is
// the decoded JSON payload when the response was JSON, the raw text otherwise.
type RejectReason struct {
	ResponseStatus int `json:"responseStatus"`
	ResponseBody   any `json:"responseBody,omitempty"`
}

// wireRequest is the POST body: the request plus job identity.
type wireRequest struct {
	IngestionRequest
	JobID     string `json:"jobId,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
	SpaceID   string `json:"spaceId,omitempty"`
	RequestID string `json:"requestId"`
}
