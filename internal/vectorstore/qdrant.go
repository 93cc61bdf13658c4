package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/fragmentsearch/fragmentsearch/internal/apperr"
	"github.com/fragmentsearch/fragmentsearch/internal/config"
	"github.com/fragmentsearch/fragmentsearch/internal/fragment"
)

// payloadOriginalID is the payload key holding the fragment's canonical
// string id, since Qdrant only accepts UUIDs or positive integers as
// point ids and most fragment ids are neither.
const payloadOriginalID = "_original_id"

// Qdrant is the server-backed Store implementation: one Qdrant collection
// per language, named <prefix><language>, created lazily on first write.
type Qdrant struct {
	client    *qdrant.Client
	prefix    string
	dimension int
	distance  config.Distance
}

// NewQdrant connects to a Qdrant instance over its gRPC port (6334 by
// default) and returns a Store. Collections are created lazily per
// language by EnsureCollection/Upsert, not at construction time, since
// the language set is not known up front.
func NewQdrant(addr, apiKey string, dimension int, distance config.Distance, prefix string) (*Qdrant, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be > 0")
	}
	host, port := splitHostPort(addr)
	cfg := &qdrant.Config{Host: host, Port: port}
	if strings.HasPrefix(addr, "https://") {
		cfg.UseTLS = true
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	if prefix == "" {
		prefix = "docs_"
	}
	return &Qdrant{client: client, prefix: prefix, dimension: dimension, distance: distance}, nil
}

func splitHostPort(addr string) (string, int) {
	addr = strings.TrimPrefix(addr, "https://")
	addr = strings.TrimPrefix(addr, "http://")
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		return addr, 6334
	}
	port := 6334
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func (q *Qdrant) collectionName(language string) string {
	return q.prefix + language
}

func (q *Qdrant) qdrantDistance() qdrant.Distance {
	switch q.distance {
	case config.DistanceEuclid:
		return qdrant.Distance_Euclid
	case config.DistanceDot:
		return qdrant.Distance_Dot
	case config.DistanceManhattan:
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

func (q *Qdrant) EnsureCollection(ctx context.Context, language string) error {
	name := q.collectionName(language)
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return apperr.NewBackendError(0, "", fmt.Errorf("check collection exists: %w", err))
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: q.qdrantDistance(),
		}),
	})
	if err != nil {
		return apperr.NewBackendError(0, "", fmt.Errorf("create collection %s: %w", name, err))
	}
	return nil
}

func pointIDFor(fragmentID string) string {
	if _, err := uuid.Parse(fragmentID); err == nil {
		return fragmentID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fragmentID)).String()
}

func payloadFor(f fragment.Fragment) map[string]any {
	payload := map[string]any{
		payloadOriginalID: f.ID,
		"language":        f.Language,
		"package":         f.Package,
		"version":         f.Version,
		"file_path":       f.FilePath,
		"hierarchy_path":  strings.Join(f.HierarchyPath, "/"),
		"kind":            string(f.Kind),
		"content":         f.Content,
		"created_at":      f.CreatedAt.Format(time.RFC3339Nano),
	}
	return payload
}

func fragmentFromPayload(payload map[string]*qdrant.Value) fragment.Fragment {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	language, pkg, version, filePath, content := get("language"), get("package"), get("version"), get("file_path"), get("content")
	f := fragment.New(language, pkg, version, filePath, content)
	if kind := get("kind"); kind != "" {
		f.Kind = fragment.Kind(kind)
	}
	return f
}

func (q *Qdrant) Upsert(ctx context.Context, pair Pair) error {
	if err := q.EnsureCollection(ctx, pair.Fragment.Language); err != nil {
		return err
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointIDFor(pair.Fragment.ID)),
		Vectors: qdrant.NewVectorsDense(append([]float32(nil), pair.Vector...)),
		Payload: qdrant.NewValueMap(payloadFor(pair.Fragment)),
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName(pair.Fragment.Language),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return apperr.NewBackendError(0, "", fmt.Errorf("upsert point: %w", err))
	}
	return nil
}

// UpsertBatch groups pairs by language and issues one Upsert call per
// collection; a failing group is reported but does not roll back groups
// already committed, per spec.md §4.5.
func (q *Qdrant) UpsertBatch(ctx context.Context, pairs []Pair) error {
	byLanguage := map[string][]Pair{}
	for _, p := range pairs {
		byLanguage[p.Fragment.Language] = append(byLanguage[p.Fragment.Language], p)
	}

	var failed []string
	for language, group := range byLanguage {
		if err := q.EnsureCollection(ctx, language); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", language, err))
			continue
		}
		points := make([]*qdrant.PointStruct, len(group))
		for i, p := range group {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(pointIDFor(p.Fragment.ID)),
				Vectors: qdrant.NewVectorsDense(append([]float32(nil), p.Vector...)),
				Payload: qdrant.NewValueMap(payloadFor(p.Fragment)),
			}
		}
		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collectionName(language),
			Points:         points,
		}); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", language, err))
		}
	}
	if len(failed) > 0 {
		return apperr.NewBackendError(0, "", fmt.Errorf("upsert_batch: %d group(s) failed: %s", len(failed), strings.Join(failed, "; ")))
	}
	return nil
}

// Search merges candidates across every language collection this store
// knows about. Qdrant has no built-in cross-collection query, so this
// lists collections under our prefix and queries each, merge-sorting the
// results client-side — the one operation spec.md explicitly expects to
// span collections rather than push down as a single backend call.
func (q *Qdrant) Search(ctx context.Context, queryVector []float32, limit int, scoreThreshold *float64) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	names, err := q.ownedCollectionNames(ctx)
	if err != nil {
		return nil, err
	}

	var all []SearchResult
	for _, name := range names {
		hits, err := q.queryCollection(ctx, name, queryVector, limit, nil)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if scoreThreshold != nil && h.Score < *scoreThreshold {
				continue
			}
			all = append(all, h)
		}
	}
	sortResults(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (q *Qdrant) SearchFiltered(ctx context.Context, queryVector []float32, filter HierarchyFilter) ([]SearchResult, error) {
	if filter.Language == "" {
		return nil, apperr.NewInvalidParameter("search_filtered: language is required")
	}
	name := q.collectionName(filter.Language)
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, apperr.NewBackendError(0, "", err)
	}
	if !exists {
		return nil, apperr.NewNotFound(fmt.Sprintf("search_filtered: unknown language collection %q", filter.Language))
	}

	must := map[string]string{}
	if filter.Package != "" {
		must["package"] = filter.Package
	}
	if filter.Version != "" {
		must["version"] = filter.Version
	}
	if filter.Kind != "" {
		must["kind"] = string(filter.Kind)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	hits, err := q.queryCollection(ctx, name, queryVector, limit, must)
	if err != nil {
		return nil, err
	}

	var out []SearchResult
	for _, h := range hits {
		if filter.FilePathPrefix != "" && !strings.HasPrefix(h.Fragment.FilePath, filter.FilePathPrefix) {
			continue
		}
		if filter.SimilarityThreshold > 0 && h.Score < filter.SimilarityThreshold {
			continue
		}
		out = append(out, h)
	}
	sortResults(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *Qdrant) queryCollection(ctx context.Context, collection string, queryVector []float32, limit int, must map[string]string) ([]SearchResult, error) {
	var queryFilter *qdrant.Filter
	if len(must) > 0 {
		conds := make([]*qdrant.Condition, 0, len(must))
		for k, v := range must {
			conds = append(conds, qdrant.NewMatch(k, v))
		}
		queryFilter = &qdrant.Filter{Must: conds}
	}
	lim := uint64(limit)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(append([]float32(nil), queryVector...)),
		Limit:          &lim,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.NewBackendError(0, "", fmt.Errorf("query collection %s: %w", collection, err))
	}

	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		f := fragmentFromPayload(hit.Payload)
		out = append(out, SearchResult{
			Fragment:       f,
			Score:          float64(hit.Score),
			ContentPreview: ContentPreview(f.Content),
		})
	}
	return out, nil
}

func (q *Qdrant) ownedCollectionNames(ctx context.Context) ([]string, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, apperr.NewBackendError(0, "", fmt.Errorf("list collections: %w", err))
	}
	var owned []string
	for _, n := range names {
		if strings.HasPrefix(n, q.prefix) {
			owned = append(owned, n)
		}
	}
	return owned, nil
}

func (q *Qdrant) Get(ctx context.Context, language, pkg, version, filePath string) (*fragment.Fragment, error) {
	id := fragment.New(language, pkg, version, filePath, "").ID
	name := q.collectionName(language)
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: name,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointIDFor(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.NewBackendError(0, "", fmt.Errorf("get point: %w", err))
	}
	if len(points) == 0 {
		return nil, nil
	}
	f := fragmentFromPayload(points[0].Payload)
	return &f, nil
}

func (q *Qdrant) Exists(ctx context.Context, language, pkg, version, filePath string) (bool, error) {
	f, err := q.Get(ctx, language, pkg, version, filePath)
	if err != nil {
		return false, err
	}
	return f != nil, nil
}

func (q *Qdrant) DeletePackage(ctx context.Context, language, pkg, version string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName(language),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("package", pkg),
				qdrant.NewMatch("version", version),
			},
		}),
	})
	if err != nil {
		return apperr.NewBackendError(0, "", fmt.Errorf("delete_package: %w", err))
	}
	return nil
}

func (q *Qdrant) DeleteFragment(ctx context.Context, language, pkg, version, filePath string) error {
	id := fragment.New(language, pkg, version, filePath, "").ID
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName(language),
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointIDFor(id))),
	})
	if err != nil {
		return apperr.NewBackendError(0, "", fmt.Errorf("delete_fragment: %w", err))
	}
	return nil
}

func (q *Qdrant) ListPackageFiles(ctx context.Context, language, pkg, version string) ([]string, error) {
	hits, err := q.queryCollection(ctx, q.collectionName(language), make([]float32, q.dimension), 10_000, map[string]string{
		"package": pkg, "version": version,
	})
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(hits))
	for _, h := range hits {
		files = append(files, h.Fragment.FilePath)
	}
	return files, nil
}

func (q *Qdrant) Stats(ctx context.Context) (Stats, error) {
	names, err := q.ownedCollectionNames(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{PerLanguage: map[string]int{}, PerPackage: map[string]int{}}
	for _, name := range names {
		info, err := q.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return Stats{}, apperr.NewBackendError(0, "", fmt.Errorf("collection info %s: %w", name, err))
		}
		count := int(info.GetPointsCount())
		language := strings.TrimPrefix(name, q.prefix)
		stats.PerLanguage[language] = count
		stats.TotalVectors += count
	}
	return stats, nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}
