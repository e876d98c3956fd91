package hubspot

// Record is a raw CRM object: identifier plus string property bag. Typed
// views live in internal/model; this package stays at the wire level.
type Record struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
	Archived   bool              `json:"archived,omitempty"`
}

// Filter is a single property predicate in a search request.
type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// FilterGroup ANDs its filters; groups are ORed together.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// Sort orders search results by one property.
type Sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

// SearchRequest is the body of a CRM search call.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Sorts        []Sort        `json:"sorts,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

// PagingNext carries the continuation cursor. Depending on API vintage the
// cursor arrives as After, as an `after` query parameter inside Link, or not
// here at all but as a flat offset on the response.
type PagingNext struct {
	After string `json:"after,omitempty"`
	Link  string `json:"link,omitempty"`
}

// Paging is the structured pagination block of a search response.
type Paging struct {
	Next *PagingNext `json:"next,omitempty"`
}

// SearchResponse is the result page of a search call.
type SearchResponse struct {
	Total   int      `json:"total"`
	Results []Record `json:"results"`
	Paging  *Paging  `json:"paging,omitempty"`
	// Offset is the legacy flat cursor some portals still return.
	Offset string `json:"offset,omitempty"`
}

// Association links a record to another record of the requested kind.
type Association struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// TokenPair is the result of a refresh-token exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}
