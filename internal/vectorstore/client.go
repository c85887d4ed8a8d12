// Package vectorstore wraps a Qdrant points client the same way
// internal/graphstore wraps the Neo4j driver: a thin connect-once lifecycle
// over a generated client, one collection per retrievable entity kind, point
// id derived from the graph node id so the two stores stay correlatable.
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/qdrant/go-client/qdrant"

	graphcodeerrors "github.com/graphcode-dev/graphcode-server/internal/errors"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Kind names one of the four point collections, one per embeddable entity
// type — mirrors the spec's "collections per kind" data-model note.
type Kind string

const (
	KindFunction Kind = "functions"
	KindClass    Kind = "classes"
	KindFile     Kind = "files"
	KindSection  Kind = "sections"
)

var allKinds = []Kind{KindFunction, KindClass, KindFile, KindSection}

// KindForLabel maps a graph node label onto its vector collection; ok is
// false for labels that are never embedded (e.g. FOLDER, GRAPH_TX).
func KindForLabel(l types.Label) (Kind, bool) {
	switch l {
	case types.LabelFunction:
		return KindFunction, true
	case types.LabelClass:
		return KindClass, true
	case types.LabelFile:
		return KindFile, true
	case types.LabelSection:
		return KindSection, true
	default:
		return "", false
	}
}

// Client wraps a Qdrant gRPC client, connecting lazily on first use — the
// same autoConnect shape as graphstore.Client, since neither store should
// pay a connection cost until a caller actually needs it.
type Client struct {
	mu        sync.Mutex
	host      string
	port      int
	apiKey    string
	useTLS    bool
	vectorDim uint64
	conn      *qdrant.Client
	connected bool
}

func NewClient(host string, port int, apiKey string, useTLS bool, vectorDim uint64) *Client {
	return &Client{host: host, port: port, apiKey: apiKey, useTLS: useTLS, vectorDim: vectorDim}
}

// IsConnected reports whether a connection has already been established,
// without attempting one — callers that treat the vector backend as an
// optional collaborator use this to skip straight to a fallback path.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	conn, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.host,
		Port:   c.port,
		APIKey: c.apiKey,
		UseTLS: c.useTLS,
	})
	if err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendNonTransient, "failed to connect to vector store").
			WithUnderlying(err).
			WithHint("check vectorStore.host/port and that Qdrant is reachable")
	}

	c.conn = conn
	c.connected = true
	return nil
}

// EnsureCollections idempotently creates the four point collections if
// missing, the vector-store analog of graphstore.EnsureBM25Index.
func (c *Client) EnsureCollections(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	for _, kind := range allKinds {
		exists, err := c.conn.CollectionExists(ctx, string(kind))
		if err != nil {
			return graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendTransient, "checking vector collection "+string(kind)).WithUnderlying(err)
		}
		if exists {
			continue
		}

		err = c.conn.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: string(kind),
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     c.vectorDim,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendNonTransient, "creating vector collection "+string(kind)).WithUnderlying(err)
		}
	}
	return nil
}

// pointID derives a stable uint64 Qdrant point id from a graph node id.
// Qdrant point ids must be a uint64 or a UUID; our node ids are neither, so
// we hash them and carry the original id through the payload instead —
// Search reads it back from there rather than from the point id itself.
func pointID(nodeID string) uint64 {
	return xxhash.Sum64String(nodeID)
}

// Upsert writes one embedded point — id equal to the graph node id, stored
// in the payload since the point id itself is a hash of it.
func (c *Client) Upsert(ctx context.Context, label types.Label, nodeID, projectID string, vector []float32) error {
	kind, ok := KindForLabel(label)
	if !ok {
		return fmt.Errorf("vectorstore: label %s has no collection", label)
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	_, err := c.conn.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: string(kind),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(pointID(nodeID)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"nodeId":    nodeID,
				"projectId": projectID,
			}),
		}},
	})
	if err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendTransient, "vector upsert failed").WithUnderlying(err)
	}
	return nil
}

// Delete removes a point by graph node id, used when a file disappears and
// its derived nodes are tombstoned on the graph side.
func (c *Client) Delete(ctx context.Context, label types.Label, nodeID string) error {
	kind, ok := KindForLabel(label)
	if !ok {
		return nil
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	_, err := c.conn.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: string(kind),
		Points: qdrant.NewPointsSelector(qdrant.NewIDNum(pointID(nodeID))),
	})
	if err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendTransient, "vector delete failed").WithUnderlying(err)
	}
	return nil
}

// Count returns the number of points stored for a project across every
// collection — the comparison point for the drift detector's "vectorCount
// < indexedSymbols" check.
func (c *Client) Count(ctx context.Context, projectID string) (uint64, error) {
	if err := c.connect(ctx); err != nil {
		return 0, err
	}

	var total uint64
	for _, kind := range allKinds {
		n, err := c.conn.Count(ctx, &qdrant.CountPoints{
			CollectionName: string(kind),
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("projectId", projectID)},
			},
		})
		if err != nil {
			return 0, graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendTransient, "vector count failed for "+string(kind)).WithUnderlying(err)
		}
		total += n
	}
	return total, nil
}

// Hit is one scored point returned from a similarity search, identified by
// the original graph node id recovered from its payload.
type Hit struct {
	NodeID string
	Score  float64
}

// Search runs a similarity query against one kind's collection, filtered to
// projectId, returning up to limit hits ordered by descending score (the
// order Qdrant itself returns, not re-sorted here).
func (c *Client) Search(ctx context.Context, kind Kind, projectID string, vector []float32, limit int) ([]Hit, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	resp, err := c.conn.Query(ctx, &qdrant.QueryPoints{
		CollectionName: string(kind),
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("projectId", projectID)},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendTransient, "vector search failed").WithUnderlying(err)
	}

	hits := make([]Hit, 0, len(resp))
	for _, p := range resp {
		nodeID := ""
		if v, ok := p.Payload["nodeId"]; ok {
			nodeID = v.GetStringValue()
		}
		if nodeID == "" {
			continue
		}
		hits = append(hits, Hit{NodeID: nodeID, Score: float64(p.Score)})
	}
	return hits, nil
}
