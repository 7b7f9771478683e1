package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/pkg/entities"
)

// ElasticsearchConfig holds configuration options for the Elasticsearch
// instance decorator
type ElasticsearchConfig struct {
	URL         string
	Username    string
	Password    string
	IndexPrefix string
}

// ElasticsearchRepository wraps a base Repository and mirrors every write
// into an Elasticsearch index so instances can be searched and aggregated by
// week, venue, and status. The base repository remains the source of truth;
// indexing failures are logged and never fail the write.
type ElasticsearchRepository struct {
	baseRepo    Repository
	client      *elasticsearch.Client
	indexPrefix string
	logger      *logrus.Logger
}

// instanceDocument is the shape indexed into Elasticsearch
type instanceDocument struct {
	InstanceID        string  `json:"instance_id"`
	RecurringGameID   string  `json:"recurring_game_id"`
	GameID            string  `json:"game_id,omitempty"`
	VenueID           string  `json:"venue_id"`
	EntityID          string  `json:"entity_id"`
	RecurringGameName string  `json:"recurring_game_name"`
	ExpectedDate      string  `json:"expected_date"`
	DayOfWeek         string  `json:"day_of_week"`
	WeekKey           string  `json:"week_key"`
	Status            string  `json:"status"`
	HasDeviation      bool    `json:"has_deviation"`
	DeviationType     string  `json:"deviation_type"`
	NeedsReview       bool    `json:"needs_review"`
	Source            string  `json:"source"`
	MatchConfidence   float64 `json:"match_confidence"`
}

// NewElasticsearchRepository creates a new Elasticsearch instance decorator
func NewElasticsearchRepository(baseRepo Repository, config *ElasticsearchConfig, logger *logrus.Logger) (*ElasticsearchRepository, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
	}
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	prefix := config.IndexPrefix
	if prefix == "" {
		prefix = "venuepipe"
	}

	repo := &ElasticsearchRepository{
		baseRepo:    baseRepo,
		client:      client,
		indexPrefix: prefix,
		logger:      logger,
	}

	if err := repo.initIndices(context.Background()); err != nil {
		return nil, fmt.Errorf("error initializing indices: %w", err)
	}

	return repo, nil
}

// initIndices creates the instance index if it doesn't exist
func (r *ElasticsearchRepository) initIndices(ctx context.Context) error {
	res, err := r.client.Indices.Exists([]string{r.instanceIndex()})
	if err != nil {
		return fmt.Errorf("error checking if instance index exists: %w", err)
	}

	if res.StatusCode == 404 {
		mapping := `{
			"mappings": {
				"properties": {
					"instance_id": { "type": "keyword" },
					"recurring_game_id": { "type": "keyword" },
					"game_id": { "type": "keyword" },
					"venue_id": { "type": "keyword" },
					"entity_id": { "type": "keyword" },
					"recurring_game_name": { "type": "text" },
					"expected_date": { "type": "date", "format": "yyyy-MM-dd" },
					"day_of_week": { "type": "keyword" },
					"week_key": { "type": "keyword" },
					"status": { "type": "keyword" },
					"has_deviation": { "type": "boolean" },
					"deviation_type": { "type": "keyword" },
					"needs_review": { "type": "boolean" },
					"source": { "type": "keyword" },
					"match_confidence": { "type": "float" }
				}
			}
		}`

		req := esapi.IndicesCreateRequest{
			Index: r.instanceIndex(),
			Body:  bytes.NewReader([]byte(mapping)),
		}

		res, err := req.Do(ctx, r.client)
		if err != nil {
			return fmt.Errorf("error creating instance index: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("error creating instance index: %s", res.String())
		}
	}

	return nil
}

func (r *ElasticsearchRepository) instanceIndex() string {
	return r.indexPrefix + "_instances"
}

// indexInstance mirrors one instance into Elasticsearch, logging on failure
func (r *ElasticsearchRepository) indexInstance(ctx context.Context, inst *entities.RecurringGameInstance) {
	doc := instanceDocument{
		InstanceID:        inst.ID,
		RecurringGameID:   inst.RecurringGameID,
		GameID:            inst.GameID,
		VenueID:           inst.VenueID,
		EntityID:          inst.EntityID,
		RecurringGameName: inst.RecurringGameName,
		ExpectedDate:      inst.ExpectedDate,
		DayOfWeek:         string(inst.DayOfWeek),
		WeekKey:           inst.WeekKey,
		Status:            string(inst.Status),
		HasDeviation:      inst.HasDeviation,
		DeviationType:     string(inst.DeviationType),
		NeedsReview:       inst.NeedsReview,
		Source:            string(inst.Source),
		MatchConfidence:   inst.MatchConfidence,
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		r.logger.WithError(err).WithField("instance_id", inst.ID).Warn("failed to marshal instance for indexing")
		return
	}

	res, err := r.client.Index(
		r.instanceIndex(),
		bytes.NewReader(jsonData),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(inst.ID),
	)
	if err != nil {
		r.logger.WithError(err).WithField("instance_id", inst.ID).Warn("failed to index instance")
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		r.logger.WithFields(logrus.Fields{
			"instance_id": inst.ID,
			"response":    res.String(),
		}).Warn("failed to index instance")
	}
}

// Get retrieves an instance by ID from the base repository
func (r *ElasticsearchRepository) Get(ctx context.Context, id string) (*entities.RecurringGameInstance, error) {
	return r.baseRepo.Get(ctx, id)
}

// GetByGameID retrieves the instance attached to a tournament, if any
func (r *ElasticsearchRepository) GetByGameID(ctx context.Context, gameID string) (*entities.RecurringGameInstance, error) {
	return r.baseRepo.GetByGameID(ctx, gameID)
}

// GetByTemplateAndDate retrieves the instance for one template occurrence
func (r *ElasticsearchRepository) GetByTemplateAndDate(ctx context.Context, recurringGameID, expectedDate string) (*entities.RecurringGameInstance, error) {
	return r.baseRepo.GetByTemplateAndDate(ctx, recurringGameID, expectedDate)
}

// ListByVenueDateRange retrieves instances at a venue in a date range
func (r *ElasticsearchRepository) ListByVenueDateRange(ctx context.Context, venueID, startDate, endDate string) ([]*entities.RecurringGameInstance, error) {
	return r.baseRepo.ListByVenueDateRange(ctx, venueID, startDate, endDate)
}

// ListByWeek retrieves instances for one ISO week at a venue
func (r *ElasticsearchRepository) ListByWeek(ctx context.Context, weekKey, venueID string) ([]*entities.RecurringGameInstance, error) {
	return r.baseRepo.ListByWeek(ctx, weekKey, venueID)
}

// Create writes to the base repository, then mirrors into Elasticsearch
func (r *ElasticsearchRepository) Create(ctx context.Context, inst *entities.RecurringGameInstance) error {
	if err := r.baseRepo.Create(ctx, inst); err != nil {
		return err
	}
	r.indexInstance(ctx, inst)
	return nil
}

// Update writes to the base repository, then mirrors into Elasticsearch
func (r *ElasticsearchRepository) Update(ctx context.Context, inst *entities.RecurringGameInstance) error {
	if err := r.baseRepo.Update(ctx, inst); err != nil {
		return err
	}
	r.indexInstance(ctx, inst)
	return nil
}

// StatusCountsByWeek aggregates indexed instances for a venue into per-week
// status counts. Used by reporting when Elasticsearch is configured; callers
// fall back to scanning the base store when it is not.
func (r *ElasticsearchRepository) StatusCountsByWeek(ctx context.Context, venueID, startDate, endDate string) (map[string]map[string]int, error) {
	query := fmt.Sprintf(`{
		"size": 0,
		"query": {
			"bool": {
				"filter": [
					{ "term": { "venue_id": %q } },
					{ "range": { "expected_date": { "gte": %q, "lte": %q } } }
				]
			}
		},
		"aggs": {
			"weeks": {
				"terms": { "field": "week_key", "size": 200 },
				"aggs": {
					"statuses": { "terms": { "field": "status", "size": 10 } }
				}
			}
		}
	}`, venueID, startDate, endDate)

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.instanceIndex()),
		r.client.Search.WithBody(bytes.NewReader([]byte(query))),
	)
	if err != nil {
		return nil, fmt.Errorf("error searching instances: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching instances: %s", res.String())
	}

	var result struct {
		Aggregations struct {
			Weeks struct {
				Buckets []struct {
					Key      string `json:"key"`
					Statuses struct {
						Buckets []struct {
							Key      string `json:"key"`
							DocCount int    `json:"doc_count"`
						} `json:"buckets"`
					} `json:"statuses"`
				} `json:"buckets"`
			} `json:"weeks"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding aggregation response: %w", err)
	}

	counts := make(map[string]map[string]int)
	for _, week := range result.Aggregations.Weeks.Buckets {
		statusCounts := make(map[string]int)
		for _, st := range week.Statuses.Buckets {
			statusCounts[st.Key] = st.DocCount
		}
		counts[week.Key] = statusCounts
	}
	return counts, nil
}
