package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ecojiaflow/ecolojia/internal/search"
)

// Config holds the connection settings for the engine.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Refresh is passed as the refresh parameter of every write
	// ("true", "false" or "wait_for"). Empty means "false".
	Refresh string
}

// Engine is an Elasticsearch-backed implementation of search.Engine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	logger    *slog.Logger
}

var _ search.Engine = (*Engine)(nil)

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// esDeleteByQueryResponse is the part of a delete_by_query response the
// engine reads.
type esDeleteByQueryResponse struct {
	Deleted  int `json:"deleted"`
	Failures []struct {
		ID    string `json:"id"`
		Cause struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"cause"`
	} `json:"failures"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an engine and makes sure the index exists, creating it with
// the catalog mapping if necessary.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}
	if cfg.Refresh == "" {
		cfg.Refresh = "false"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	e := &Engine{
		client:    client,
		indexName: cfg.Index,
		refresh:   cfg.Refresh,
		logger:    logger,
	}

	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}

	return e, nil
}

// IndexName returns the index this engine writes to.
func (e *Engine) IndexName() string {
	return e.indexName
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	closeBody(res)

	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", slog.String("index", e.indexName))
		return nil
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		err := decodeError(res)
		// Another replica created it first.
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index: %w", err)
	}

	e.logger.Info("elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

// Index adds or replaces a document under its ObjectID.
func (e *Engine) Index(ctx context.Context, doc *search.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ObjectID),
		e.client.Index.WithRefresh(e.refresh),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch index %s: %w", doc.ObjectID, decodeError(res))
	}

	e.logger.DebugContext(ctx, "indexed product", slog.String("id", doc.ObjectID))
	return nil
}

// Delete removes a document by id. A 404 is success.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithRefresh(e.refresh),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch delete %s: %w", id, decodeError(res))
	}

	e.logger.DebugContext(ctx, "deleted product", slog.String("id", id))
	return nil
}

// BulkIndex adds or replaces documents using the bulk NDJSON API.
func (e *Engine) BulkIndex(ctx context.Context, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for i := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": e.indexName,
				"_id":    docs[i].ObjectID,
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk index: %w", decodeError(res))
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error.Type != "" {
					errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", result.ID, result.Error.Type, result.Error.Reason))
				}
			}
		}
		return fmt.Errorf("elasticsearch bulk index: %d of %d failed: %s", len(errMsgs), len(docs), strings.Join(errMsgs, "; "))
	}

	e.logger.InfoContext(ctx, "bulk indexed products", slog.Int("count", len(docs)))
	return nil
}

// PurgeStale deletes every document whose synced_at is before cutoff or
// missing, using delete_by_query. Version conflicts are skipped: a document
// rewritten while the query runs is fresh by definition.
func (e *Engine) PurgeStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"range": map[string]any{
						"synced_at": map[string]any{"lt": cutoff.UTC().Format(time.RFC3339Nano)},
					}},
					map[string]any{"bool": map[string]any{
						"must_not": map[string]any{"exists": map[string]any{"field": "synced_at"}},
					}},
				},
				"minimum_should_match": 1,
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch purge: encode query: %w", err)
	}

	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		bytes.NewReader(body),
		e.client.DeleteByQuery.WithConflicts("proceed"),
		e.client.DeleteByQuery.WithRefresh(e.refresh != "false"),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch purge: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch purge: %w", decodeError(res))
	}

	var dbq esDeleteByQueryResponse
	if err := json.NewDecoder(res.Body).Decode(&dbq); err != nil {
		return 0, fmt.Errorf("elasticsearch purge: decode response: %w", err)
	}
	if len(dbq.Failures) > 0 {
		f := dbq.Failures[0]
		return dbq.Deleted, fmt.Errorf("elasticsearch purge: %d failures, first id=%s: %s: %s",
			len(dbq.Failures), f.ID, f.Cause.Type, f.Cause.Reason)
	}

	e.logger.InfoContext(ctx, "purged stale documents",
		slog.Int("count", dbq.Deleted),
		slog.Time("cutoff", cutoff),
	)
	return dbq.Deleted, nil
}

// decodeError turns an error response into an error naming the
// Elasticsearch error type when the body carries one.
func decodeError(res *esapi.Response) error {
	var errResp esErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", res.Status(), errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("unexpected status %s", res.Status())
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
