package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"storefront_back_end/internal/models"
)

// ElasticSearcher maintient l'index produits et y exécute les recherches.
type ElasticSearcher struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSearcher(client *elasticsearch.Client, index string) *ElasticSearcher {
	return &ElasticSearcher{client: client, index: index}
}

//
// --- INDEXATION ---
//

func (e *ElasticSearcher) Index(ctx context.Context, p models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: p.ID,
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("erreur envoi Elastic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexation de %s refusée: %s", p.ID, res.Status())
	}
	return nil
}

func (e *ElasticSearcher) Delete(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: e.index, DocumentID: id, Refresh: "true"}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("erreur envoi Elastic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("suppression de %s refusée: %s", id, res.Status())
	}
	return nil
}

//
// --- RECHERCHE ---
//

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Product `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search cherche query dans le nom, la description et la fiche technique.
func (e *ElasticSearcher) Search(ctx context.Context, query string) ([]models.Product, error) {
	var buf bytes.Buffer
	q := map[string]interface{}{
		"size": 50,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"name^2", "description", "weight"},
				"fuzziness": "AUTO",
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, fmt.Errorf("erreur encodage requête: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("erreur requête Elastic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.New("index non trouvé ou vide")
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("erreur décodage JSON: %w", err)
	}

	results := make([]models.Product, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		results = append(results, hit.Source)
	}
	return results, nil
}
