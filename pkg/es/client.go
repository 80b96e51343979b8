// Package es provides the Elasticsearch-backed embedding index.
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"questionnaire-agent-go/internal/config"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/pkg/log"
)

// Client wraps the Elasticsearch client with chunk-index operations.
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient connects to Elasticsearch and ensures the chunk index exists.
func NewClient(esCfg config.ElasticsearchConfig, vectorDims int) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: esClient, indexName: esCfg.IndexName}
	if err := c.createIndexIfNotExists(vectorDims); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists checks for the chunk index and creates it with the
// dense_vector mapping when missing.
func (c *Client) createIndexIfNotExists(vectorDims int) error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("failed to check index existence: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("index '%s' already exists", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("unexpected status %d while checking index '%s'", res.StatusCode, c.indexName)
		return fmt.Errorf("unexpected status while checking index existence: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"document_name": { "type": "keyword" },
				"ordinal": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, vectorDims)

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("failed to create index '%s': %v", c.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("elasticsearch returned an error creating index '%s': %s", c.indexName, res.String())
		return errors.New("elasticsearch returned an error while creating the index")
	}

	log.Infof("index '%s' created successfully", c.indexName)
	return nil
}

// IndexChunk writes one chunk document. The chunk id doubles as the ES
// document id, so repeated writes overwrite rather than duplicate.
func (c *Client) IndexChunk(ctx context.Context, chunk model.EsChunk) error {
	docBytes, err := json.Marshal(chunk)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: chunk.ChunkID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("failed to index chunk %s: %s", chunk.ChunkID, res.String())
		return errors.New("failed to index chunk")
	}
	return nil
}

// DeleteByDocumentID removes every chunk of a document. Used to keep
// re-indexing idempotent: the previous chunk set is dropped before the new
// one is written.
func (c *Client) DeleteByDocumentID(ctx context.Context, documentID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"document_id": documentID,
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.indexName},
		&buf,
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("delete-by-query for document %s failed: %s", documentID, res.String())
		return errors.New("failed to delete document chunks")
	}
	return nil
}

// SearchByVector runs a knn similarity search restricted to the given
// document ids. Scores are ES cosine knn scores, already in [0,1].
func (c *Client) SearchByVector(ctx context.Context, vector []float32, k int, documentIDs []string) ([]model.RetrievedChunk, error) {
	if len(documentIDs) == 0 {
		return []model.RetrievedChunk{}, nil
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
			"filter": map[string]interface{}{
				"terms": map[string]interface{}{
					"document_id": documentIDs,
				},
			},
		},
		"size": k,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.RetrievedChunk, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.RetrievedChunk{
			DocumentID:   hit.Source.DocumentID,
			DocumentName: hit.Source.DocumentName,
			Ordinal:      hit.Source.Ordinal,
			TextContent:  hit.Source.TextContent,
			Score:        hit.Score,
		})
	}
	return results, nil
}

// Ping reports whether the cluster is reachable.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}
