package domain

import "time"

// Profile is a person entity owned by the profile store, read-only to the
// matching pipeline.
type Profile struct {
	ID         string
	Name       string
	Age        int
	University string
	Course     string
	Gender     string
	Bio        string
	Traits     []string
	Visible    bool
	Deleted    bool
	LastActive time.Time
	PushToken  string
}

// HasTrait reports whether the profile exhibits the given trait.
func (p *Profile) HasTrait(trait string) bool {
	for _, t := range p.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

// MatchesFilters reports whether the profile satisfies every set constraint.
func (p *Profile) MatchesFilters(f HardFilters) bool {
	if f.MinAge > 0 && p.Age < f.MinAge {
		return false
	}
	if f.MaxAge > 0 && p.Age > f.MaxAge {
		return false
	}
	if f.University != "" && p.University != f.University {
		return false
	}
	if f.Course != "" && p.Course != f.Course {
		return false
	}
	if f.Gender != "" && p.Gender != f.Gender {
		return false
	}
	return true
}

// Candidate wraps a retrieved profile with its raw similarity score. It
// exists only for the duration of one retrieval.
type Candidate struct {
	Profile     Profile
	VectorScore float64 // cosine similarity in [0,1]; 0 in filter-only mode
	FilterMatch bool
}

// SearchMethod identifies how candidates were retrieved.
type SearchMethod string

const (
	// SearchMethodVector is KNN retrieval over profile embeddings.
	SearchMethodVector SearchMethod = "vector"
	// SearchMethodFilter is hard-filter-only retrieval.
	SearchMethodFilter SearchMethod = "filter"
)
