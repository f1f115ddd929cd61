// Package profile adapts the FT.SEARCH-indexed profile store to the
// retrieval pipeline. Profiles are stored as hashes under one key prefix
// with their embedding inlined as a FLOAT32 blob field.
package profile

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/campusmatch/matchagent/internal/db"
	"github.com/campusmatch/matchagent/internal/domain"
)

// IndexName is the FT index over profile hashes.
const IndexName = "idx:profiles"

const hashPrefix = "profile:"

var returnFields = []string{
	"id", "name", "age", "university", "course", "gender",
	"bio", "traits", "visible", "deleted", "last_active", "push_token",
}

// Repo reads and writes profiles through db.Store.
type Repo struct {
	store     db.Store
	keyPrefix string
	vectorDim int
}

// New creates a profile repository.
func New(store db.Store, keyPrefix string, vectorDim int) *Repo {
	return &Repo{store: store, keyPrefix: keyPrefix, vectorDim: vectorDim}
}

// EnsureIndex creates the FT index if it does not exist yet. Idempotent,
// called once at startup.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	def := &db.IndexDefinition{
		Name:     IndexName,
		Prefixes: []string{r.keyPrefix + hashPrefix},
		Fields: []db.IndexField{
			{Name: "visible", Type: db.IndexFieldTag},
			{Name: "deleted", Type: db.IndexFieldTag},
			{Name: "age", Type: db.IndexFieldNumeric},
			{Name: "last_active", Type: db.IndexFieldNumeric},
			{Name: "university", Type: db.IndexFieldTag},
			{Name: "course", Type: db.IndexFieldTag},
			{Name: "gender", Type: db.IndexFieldTag},
			{Name: "traits", Type: db.IndexFieldTag, TagSeparator: ","},
			{
				Name:           "vector",
				Type:           db.IndexFieldVector,
				VectorAlgo:     db.VectorHNSW,
				VectorDim:      r.vectorDim,
				VectorDistance: db.DistanceCosine,
			},
		},
	}

	err := r.store.CreateIndex(ctx, def)
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create profile index: %w", err)
	}
	return nil
}

// Get fetches one profile by id.
func (r *Repo) Get(ctx context.Context, id string) (*domain.Profile, error) {
	fields, err := r.store.HGetAll(ctx, r.key(id))
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrProfileNotFound
	}
	p := profileFromFields(fields)
	return &p, nil
}

// Upsert stores a profile and its embedding.
func (r *Repo) Upsert(ctx context.Context, p *domain.Profile, vector []float32) error {
	fields := profileToFields(p)
	if len(vector) > 0 {
		fields["vector"] = vectorToBlob(vector)
	}
	if err := r.store.HSet(ctx, r.key(p.ID), fields); err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}
	return nil
}

// SearchByVector runs KNN retrieval over visible, non-deleted profiles
// matching the hard filters. Results arrive ordered by similarity.
func (r *Repo) SearchByVector(
	ctx context.Context, vector []float32, filters domain.HardFilters, k int,
) ([]domain.Candidate, int, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName,
		Prefilter:    buildPrefilter(filters),
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("knn search: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		p := profileFromFields(e.Fields)
		candidates = append(candidates, domain.Candidate{
			Profile:     p,
			VectorScore: e.Score,
			FilterMatch: p.MatchesFilters(filters),
		})
	}
	return candidates, res.Total, nil
}

// SearchByFilters runs attribute-only retrieval over visible, non-deleted
// profiles. Results are ordered by ascending age then fixed up by the
// caller; VectorScore is zero in this mode.
func (r *Repo) SearchByFilters(
	ctx context.Context, filters domain.HardFilters, offset, limit int,
) ([]domain.Candidate, int, error) {
	res, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    IndexName,
		Query:        buildPrefilter(filters),
		Offset:       offset,
		Limit:        limit,
		SortBy:       "age",
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("filter search: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		candidates = append(candidates, domain.Candidate{
			Profile:     profileFromFields(e.Fields),
			FilterMatch: true,
		})
	}
	return candidates, res.Total, nil
}

// ListEligible returns ids of profiles active since the cutoff and not
// soft-deleted, for the weekly batch. limit<=0 means no limit.
func (r *Repo) ListEligible(ctx context.Context, activeSince time.Time, limit int) ([]string, error) {
	pageSize := 200
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	query := fmt.Sprintf("@deleted:{0} @last_active:[%d +inf]", activeSince.Unix())

	var ids []string
	offset := 0
	for {
		res, err := r.store.SearchList(ctx, &db.ListQuery{
			IndexName:    IndexName,
			Query:        query,
			Offset:       offset,
			Limit:        pageSize,
			SortBy:       "last_active",
			ReturnFields: []string{"id"},
		})
		if err != nil {
			return nil, fmt.Errorf("list eligible: %w", err)
		}
		for _, e := range res.Entries {
			ids = append(ids, e.Fields["id"])
			if limit > 0 && len(ids) >= limit {
				return ids, nil
			}
		}
		offset += pageSize
		if offset >= res.Total || len(res.Entries) == 0 {
			break
		}
	}
	return ids, nil
}

// Block records a block from blocker to blocked. Both directions are
// written so exclusion needs only the requester's own set.
func (r *Repo) Block(ctx context.Context, blockerID, blockedID string) error {
	if err := r.store.SAdd(ctx, r.blockKey(blockerID), blockedID); err != nil {
		return fmt.Errorf("block %s: %w", blockerID, err)
	}
	if err := r.store.SAdd(ctx, r.blockKey(blockedID), blockerID); err != nil {
		return fmt.Errorf("block back-reference %s: %w", blockedID, err)
	}
	return nil
}

// Blocklist returns every id blocked by or blocking the given user.
func (r *Repo) Blocklist(ctx context.Context, userID string) ([]string, error) {
	members, err := r.store.SMembers(ctx, r.blockKey(userID))
	if err != nil {
		return nil, fmt.Errorf("blocklist %s: %w", userID, err)
	}
	return members, nil
}

func (r *Repo) key(id string) string {
	return r.keyPrefix + hashPrefix + id
}

func (r *Repo) blockKey(userID string) string {
	return r.keyPrefix + "blocks:" + userID
}

// --- field mapping ---

func profileToFields(p *domain.Profile) map[string]string {
	visible := "0"
	if p.Visible {
		visible = "1"
	}
	deleted := "0"
	if p.Deleted {
		deleted = "1"
	}
	return map[string]string{
		"id":          p.ID,
		"name":        p.Name,
		"age":         strconv.Itoa(p.Age),
		"university":  p.University,
		"course":      p.Course,
		"gender":      p.Gender,
		"bio":         p.Bio,
		"traits":      strings.Join(p.Traits, ","),
		"visible":     visible,
		"deleted":     deleted,
		"last_active": strconv.FormatInt(p.LastActive.Unix(), 10),
		"push_token":  p.PushToken,
	}
}

func profileFromFields(fields map[string]string) domain.Profile {
	age, _ := strconv.Atoi(fields["age"])
	lastActive, _ := strconv.ParseInt(fields["last_active"], 10, 64)

	var traits []string
	if fields["traits"] != "" {
		traits = strings.Split(fields["traits"], ",")
	}

	return domain.Profile{
		ID:         fields["id"],
		Name:       fields["name"],
		Age:        age,
		University: fields["university"],
		Course:     fields["course"],
		Gender:     fields["gender"],
		Bio:        fields["bio"],
		Traits:     traits,
		Visible:    fields["visible"] == "1",
		Deleted:    fields["deleted"] == "1",
		LastActive: time.Unix(lastActive, 0).UTC(),
		PushToken:  fields["push_token"],
	}
}

// buildPrefilter translates hard filters into an FT.SEARCH filter
// expression. Visibility and soft-deletion are always enforced here;
// requester/blocked exclusion happens in the retrieval use case.
func buildPrefilter(f domain.HardFilters) string {
	parts := []string{"@visible:{1}", "@deleted:{0}"}

	if f.MinAge > 0 || f.MaxAge > 0 {
		minBound := "-inf"
		maxBound := "+inf"
		if f.MinAge > 0 {
			minBound = strconv.Itoa(f.MinAge)
		}
		if f.MaxAge > 0 {
			maxBound = strconv.Itoa(f.MaxAge)
		}
		parts = append(parts, fmt.Sprintf("@age:[%s %s]", minBound, maxBound))
	}
	if f.University != "" {
		parts = append(parts, fmt.Sprintf("@university:{%s}", escapeTag(f.University)))
	}
	if f.Course != "" {
		parts = append(parts, fmt.Sprintf("@course:{%s}", escapeTag(f.Course)))
	}
	if f.Gender != "" {
		parts = append(parts, fmt.Sprintf("@gender:{%s}", escapeTag(f.Gender)))
	}

	return strings.Join(parts, " ")
}

var tagEscaper = strings.NewReplacer(
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>",
	"{", "\\{", "}", "\\}", "\"", "\\\"", "'", "\\'",
	":", "\\:", ";", "\\;", "!", "\\!", "@", "\\@",
	"#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)",
	"-", "\\-", "+", "\\+", "=", "\\=", "~", "\\~",
	" ", "\\ ",
)

func escapeTag(v string) string {
	return tagEscaper.Replace(v)
}

func vectorToBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
