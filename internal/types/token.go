package types

// Provenance is the channel a token candidate was observed on. Values are wire strings.
type Provenance string

const (
	ProvenanceFetchOptions  Provenance = "fetch-options"
	ProvenanceHeader        Provenance = "header"
	ProvenanceRespHeader    Provenance = "resp-header"
	ProvenanceRespBody      Provenance = "resp-body"
	ProvenanceXHRSendHeader Provenance = "xhr-send-header"
	ProvenanceXHRBody       Provenance = "xhr-body"
	ProvenanceXHRHeader     Provenance = "xhr-header"
	ProvenanceStorage       Provenance = "storage"
	ProvenanceCookie        Provenance = "cookie"
)

// Category groups provenances by where in the exchange the token was seen.
type Category string

const (
	CategoryRequestHeader  Category = "request-header"
	CategoryResponseHeader Category = "response-header"
	CategoryResponseBody   Category = "response-body"
	CategoryRequestBody    Category = "request-body"
	CategoryStorageWrite   Category = "storage-write"
	CategoryCookie         Category = "cookie"
	CategoryUnknown        Category = "unknown"
)

func (p Provenance) Category() Category {
	switch p {
	case ProvenanceHeader, ProvenanceXHRHeader, ProvenanceXHRSendHeader:
		return CategoryRequestHeader
	case ProvenanceRespHeader:
		return CategoryResponseHeader
	case ProvenanceRespBody:
		return CategoryResponseBody
	case ProvenanceFetchOptions, ProvenanceXHRBody:
		return CategoryRequestBody
	case ProvenanceStorage:
		return CategoryStorageWrite
	case ProvenanceCookie:
		return CategoryCookie
	default:
		return CategoryUnknown
	}
}

// HighConfidence reports whether the candidate came from an explicit Authorization: Bearer header.
func (p Provenance) HighConfidence() bool {
	return p == ProvenanceHeader || p == ProvenanceXHRHeader
}

// TokenCandidate is a bearer-token-shaped string and where it was seen.
type TokenCandidate struct {
	Token      string     `json:"token"`
	Provenance Provenance `json:"type"`
}
