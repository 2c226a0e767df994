package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/zoontopia/superdaddy/internal/logging"
)

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the 6333 REST
	// port).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// RequestTimeout bounds individual requests.
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries for transient failures.
	RetryAttempts int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantStore implements Store using Qdrant's official gRPC client.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *logging.Logger
}

// NewQdrantStore connects to Qdrant and verifies the connection.
func NewQdrantStore(cfg QdrantConfig, logger *logging.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	}
	if !cfg.UseTLS {
		qdrantConfig.GrpcOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		}
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client: client,
		config: cfg,
		logger: logger.Named("qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	s.logger.Info(ctx, "qdrant connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)
	return s, nil
}

// EnsureCollection creates the collection if missing. An existing collection
// with a different vector size is a fatal configuration error.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	return s.retryOperation(ctx, func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err == nil && info != nil {
			if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
				if got := int(params.GetSize()); got != vectorSize {
					return fmt.Errorf("%w: collection %s has vector size %d, expected %d",
						ErrInvalidConfig, name, got, vectorSize)
				}
			}
			return nil
		}
		if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
			return err
		}

		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

// Upsert inserts or updates points in a collection.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if len(docs) == 0 {
		return fmt.Errorf("%w: nothing to upsert", ErrEmptyDocuments)
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		payload := make(map[string]*qdrant.Value, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}
		payload["text"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.Content}}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		}
	}

	return s.retryOperation(ctx, func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	})
}

// Search performs similarity search with an optional metadata filter.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, k int, threshold float32, filter map[string]string) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if threshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(threshold)
	}
	if len(filter) > 0 {
		query.Filter = buildFilter(filter)
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, func() error {
		res, err := s.client.Query(ctx, query)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			Document: documentFromPayload(pointID(r.Id), r.Payload),
			Score:    r.Score,
		}
	}
	return searchResults, nil
}

// Get retrieves points by their IDs. Missing IDs are simply absent.
func (s *QdrantStore) Get(ctx context.Context, collection string, ids []string) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, func() error {
		res, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching points from %s: %w", collection, err)
	}

	docs := make([]Document, len(points))
	for i, p := range points {
		docs[i] = documentFromPayload(pointID(p.Id), p.Payload)
	}
	return docs, nil
}

// Close closes the client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on transient
// gRPC failures.
func (s *QdrantStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientGRPCError(err) {
			return err
		}
		if attempt == s.config.RetryAttempts {
			break
		}

		s.logger.Debug(ctx, "retrying qdrant operation",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.config.RetryAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", s.config.RetryAttempts, lastErr)
}

// isTransientGRPCError checks if an error should be retried.
func isTransientGRPCError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func buildFilter(filter map[string]string) *qdrant.Filter {
	must := make([]*qdrant.Condition, 0, len(filter))
	for field, value := range filter {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}

func documentFromPayload(id string, payload map[string]*qdrant.Value) Document {
	doc := Document{
		ID:       id,
		Metadata: make(map[string]string, len(payload)),
	}
	for k, v := range payload {
		sv := v.GetStringValue()
		if k == "text" {
			doc.Content = sv
			continue
		}
		doc.Metadata[k] = sv
	}
	return doc
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	return id.GetUuid()
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
