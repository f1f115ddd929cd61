package db

// KNNQuery is the input for vector similarity search. Prefilter is a raw
// FT.SEARCH filter expression ("*" semantics when empty); the repository
// layer is responsible for building and escaping it.
type KNNQuery struct {
	IndexName    string
	Prefilter    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// ListQuery is the input for paginated attribute-filtered search.
type ListQuery struct {
	IndexName    string
	Query        string
	Offset       int
	Limit        int
	SortBy       string // field to sort by; deterministic paging needs one
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
