package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"weft/internal/backend"
)

const (
	// MetadataHeader carries the JSON MetadataInput on content uploads.
	MetadataHeader = "Weft-Metadata"
	// SupplementaryHeader carries the JSON SupplementaryInput on uploads.
	SupplementaryHeader = "Weft-Supplementary"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type LeaseRequest struct {
	Owner       string `json:"owner"`
	LeaseMillis int64  `json:"lease_ms"`
}

// Lease returns the requested lease duration.
func (r LeaseRequest) Lease() time.Duration {
	return time.Duration(r.LeaseMillis) * time.Millisecond
}

type PhaseRequest struct {
	Owner    string           `json:"owner"`
	Progress backend.Progress `json:"progress"`
}

type OwnerRequest struct {
	Owner string `json:"owner"`
}

type RetryRequest struct {
	Owner       string    `json:"owner"`
	AvailableAt time.Time `json:"available_at"`
	Reason      string    `json:"reason"`
}

type FailRequest struct {
	Owner  string `json:"owner"`
	Reason string `json:"reason"`
}

type RetryFailedRequest struct {
	IDs []string `json:"ids,omitempty"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type CollectionRequest struct {
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type AttributesRequest struct {
	Attributes map[string]any `json:"attributes"`
}

type CompleteStateRequest struct {
	Status string `json:"status"`
}

type SetStateRequest struct {
	State     string `json:"state"`
	Status    string `json:"status"`
	Immediate bool   `json:"immediate"`
}

// RefQuery encodes a content reference as query parameters.
func RefQuery(ref backend.ContentRef) url.Values {
	values := url.Values{}
	if ref.IsCollection() {
		values.Set("collection_id", ref.CollectionID)
		return values
	}
	values.Set("metadata_id", ref.MetadataID)
	if ref.MetadataVersion > 0 {
		values.Set("metadata_version", strconv.Itoa(ref.MetadataVersion))
	}
	return values
}

// ParseRef decodes a content reference from query parameters.
func ParseRef(values url.Values) (backend.ContentRef, error) {
	ref := backend.ContentRef{
		MetadataID:   strings.TrimSpace(values.Get("metadata_id")),
		CollectionID: strings.TrimSpace(values.Get("collection_id")),
	}
	if raw := strings.TrimSpace(values.Get("metadata_version")); raw != "" {
		version, err := strconv.Atoi(raw)
		if err != nil {
			return ref, fmt.Errorf("metadata_version %q is not an integer", raw)
		}
		ref.MetadataVersion = version
	}
	return ref, ref.Validate()
}
