package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/felttable/venuepipe/pkg/entities"
	"github.com/felttable/venuepipe/pkg/matching"
	"github.com/felttable/venuepipe/pkg/schedule"
)

// Structural-similarity constants for clustering. Two tournaments belong to
// the same candidate pattern when their buy-ins sit within a 2x ratio and
// their start times within 90 AEST minutes of each other; the transitive
// closure at 0.7 forms the clusters.
const (
	buyInMaxRatio       = 2.0
	startTimeWindowMins = 90
	clusterThreshold    = 0.7

	similarityBoth     = 1.0
	similarityOne      = 0.4
	similarityDegraded = 0.8 // Only one criterion observable, and it matches
)

// BulkInput selects the backlog and controls pacing
type BulkInput struct {
	VenueID string

	// EntityID stamps auto-created templates; when empty, each
	// tournament's own entity is used
	EntityID string

	DryRun bool

	// RequirePatternConfirmation demands at least two structurally similar
	// tournaments before a cluster becomes a candidate template
	RequirePatternConfirmation bool
}

// BulkDetail is one per-tournament outcome row, bounded in the result
type BulkDetail struct {
	TournamentID string                    `json:"tournamentId"`
	Name         string                    `json:"name"`
	Action       string                    `json:"action"` // assigned | created | deferred | no_match | error
	Status       entities.AssignmentStatus `json:"status,omitempty"`
	TemplateID   string                    `json:"templateId,omitempty"`
	Reason       string                    `json:"reason,omitempty"`
}

// CandidateTemplate is a discovered pattern, reported in dry-run mode
type CandidateTemplate struct {
	Name          string               `json:"name"`
	DayOfWeek     entities.DayOfWeek   `json:"dayOfWeek"`
	SessionMode   entities.SessionMode `json:"sessionMode"`
	GameVariant   entities.GameVariant `json:"gameVariant,omitempty"`
	StartTime     string               `json:"startTime"`
	TypicalBuyIn  decimal.Decimal      `json:"typicalBuyIn"`
	Size          int                  `json:"size"`
	TournamentIDs []string             `json:"tournamentIds"`
}

// BulkResult is the aggregate outcome; counts are always populated even
// under partial failure.
type BulkResult struct {
	Success    bool                `json:"success"`
	Processed  int                 `json:"processed"`
	Assigned   int                 `json:"assigned"`
	Created    int                 `json:"created"`
	Deferred   int                 `json:"deferred"`
	NoMatch    int                 `json:"noMatch"`
	Errors     int                 `json:"errors"`
	Candidates []CandidateTemplate `json:"candidates,omitempty"`
	Details    []BulkDetail        `json:"details"`
	Reason     string              `json:"reason,omitempty"`
}

// enriched carries the derived fields clustering needs
type enriched struct {
	t            *entities.Tournament
	day          entities.DayOfWeek
	mode         entities.SessionMode
	variant      entities.GameVariant
	startMinutes int // -1 when unknown
	buyIn        *decimal.Decimal
}

// partitionKey groups tournaments that could share a template
type partitionKey struct {
	day  entities.DayOfWeek
	mode entities.SessionMode
}

// ProcessUnassignedTournaments discovers new recurring patterns in the
// backlog of unassigned tournaments at a venue. In dry-run mode it reports
// candidate templates and predicted actions; in apply mode it resolves each
// clustered tournament in bounded batches.
func (s *Service) ProcessUnassignedTournaments(ctx context.Context, input BulkInput) (*BulkResult, error) {
	result := &BulkResult{Success: true, Details: make([]BulkDetail, 0)}

	backlog, err := s.tournaments.ListUnassignedByVenue(ctx, input.VenueID)
	if err != nil {
		s.logger.WithError(err).WithField("venue_id", input.VenueID).Error("failed to list unassigned tournaments")
		result.Success = false
		result.Reason = ReasonError
		return result, nil
	}

	// Enrich and partition. Tournaments the calendar cannot place are
	// counted but never clustered.
	partitions := make(map[partitionKey][]enriched)
	var keys []partitionKey
	for _, t := range backlog {
		result.Processed++
		aest, ok := schedule.AsAEST(t.GameStartDateTime)
		if !ok {
			result.NoMatch++
			s.appendDetail(result, BulkDetail{TournamentID: t.ID, Name: t.Name, Action: "no_match", Reason: ReasonUnresolvableDay})
			continue
		}
		mode, _ := matching.ClassifySessionMode(t.Name)
		variant := t.GameVariant
		if variant == "" {
			variant = matching.DetectVariant(t.Name)
		}
		e := enriched{
			t:            t,
			day:          aest.DayOfWeek,
			mode:         mode,
			variant:      variant,
			startMinutes: aest.Hour*60 + aest.Minute,
			buyIn:        t.BuyIn,
		}
		key := partitionKey{day: e.day, mode: e.mode}
		if _, seen := partitions[key]; !seen {
			keys = append(keys, key)
		}
		partitions[key] = append(partitions[key], e)
	}

	// Stable partition order keeps dry-run output deterministic.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].mode < keys[j].mode
	})

	minSize := 1
	if input.RequirePatternConfirmation {
		minSize = 2
	}

	var clusters [][]enriched
	for _, key := range keys {
		for _, cluster := range clusterPartition(partitions[key]) {
			if len(cluster) >= minSize {
				clusters = append(clusters, cluster)
			}
		}
	}

	for _, cluster := range clusters {
		result.Candidates = append(result.Candidates, describeCluster(cluster))
	}

	if input.DryRun {
		for _, cluster := range clusters {
			candidate := describeCluster(cluster)
			for _, e := range cluster {
				s.appendDetail(result, BulkDetail{
					TournamentID: e.t.ID,
					Name:         e.t.Name,
					Action:       "created",
					Reason:       fmt.Sprintf("would resolve against candidate %q", candidate.Name),
				})
			}
		}
		return result, nil
	}

	s.applyClusters(ctx, input, clusters, result)
	return result, nil
}

// applyClusters resolves each clustered tournament in bounded batches with an
// inter-batch delay so the store is not overloaded.
func (s *Service) applyClusters(ctx context.Context, input BulkInput, clusters [][]enriched, result *BulkResult) {
	var flat []enriched
	for _, cluster := range clusters {
		flat = append(flat, cluster...)
	}

	type outcome struct {
		detail BulkDetail
	}

	for start := 0; start < len(flat); start += s.bulk.BatchSize {
		if ctx.Err() != nil {
			result.Success = false
			result.Reason = ReasonDeadlineExceeded
			return
		}

		end := start + s.bulk.BatchSize
		if end > len(flat) {
			end = len(flat)
		}
		batch := flat[start:end]
		outcomes := make([]outcome, len(batch))

		g, batchCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.bulk.BatchSize)
		for i, e := range batch {
			i, e := i, e
			g.Go(func() error {
				outcomes[i] = outcome{detail: s.resolveOne(batchCtx, input, e)}
				return nil
			})
		}
		// Workers report outcomes in-slice and never return errors.
		_ = g.Wait()

		for _, o := range outcomes {
			switch o.detail.Action {
			case "assigned":
				result.Assigned++
			case "created":
				result.Created++
			case "deferred":
				result.Deferred++
			case "no_match":
				result.NoMatch++
			default:
				result.Errors++
			}
			s.appendDetail(result, o.detail)
		}

		if end < len(flat) && s.bulk.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				result.Success = false
				result.Reason = ReasonDeadlineExceeded
				return
			case <-time.After(s.bulk.BatchDelay):
			}
		}
	}
}

// resolveOne runs the single-tournament resolver for one backlog item and
// applies the resulting patch.
func (s *Service) resolveOne(ctx context.Context, input BulkInput, e enriched) BulkDetail {
	detail := BulkDetail{TournamentID: e.t.ID, Name: e.t.Name}

	entityID := input.EntityID
	if entityID == "" {
		entityID = e.t.EntityID
	}

	res, err := s.ResolveRecurringAssignment(ctx, ResolveInput{
		Tournament: e.t,
		EntityID:   entityID,
		AutoCreate: true,
	})
	if err != nil || !res.Success {
		detail.Action = "error"
		if res != nil {
			detail.Reason = res.Reason
		}
		return detail
	}

	if err := s.tournaments.ApplyResolution(ctx, e.t.ID, &res.Patch); err != nil {
		s.logger.WithError(err).WithField("tournament_id", e.t.ID).Warn("failed to apply resolution patch")
		detail.Action = "error"
		detail.Reason = ReasonError
		return detail
	}

	detail.Status = res.Patch.RecurringGameAssignmentStatus
	detail.TemplateID = res.Patch.RecurringGameID
	detail.Reason = res.Reason
	switch {
	case res.WasCreated:
		detail.Action = "created"
	case res.Patch.RecurringGameAssignmentStatus == entities.AssignmentAuto:
		detail.Action = "assigned"
	case res.Patch.RecurringGameAssignmentStatus == entities.AssignmentPending:
		detail.Action = "deferred"
	default:
		detail.Action = "no_match"
	}
	return detail
}

// appendDetail adds a detail row unless the bound is already reached
func (s *Service) appendDetail(result *BulkResult, detail BulkDetail) {
	if len(result.Details) < s.bulk.MaxDetails {
		result.Details = append(result.Details, detail)
	}
}

// clusterPartition forms transitive clusters within one (day, mode)
// partition using structural similarity.
func clusterPartition(items []enriched) [][]enriched {
	if len(items) == 0 {
		return nil
	}
	uf := newUnionFind(len(items))
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if structuralSimilarity(items[i], items[j]) >= clusterThreshold {
				uf.union(i, j)
			}
		}
	}

	var clusters [][]enriched
	for _, group := range uf.groups() {
		cluster := make([]enriched, 0, len(group))
		for _, idx := range group {
			cluster = append(cluster, items[idx])
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// structuralSimilarity scores two tournaments on buy-in ratio and start-time
// proximity. Missing data degrades to the one observable criterion.
func structuralSimilarity(a, b enriched) float64 {
	buyInKnown := a.buyIn != nil && b.buyIn != nil
	timeKnown := a.startMinutes >= 0 && b.startMinutes >= 0

	buyInOK := false
	if buyInKnown {
		buyInOK = buyInsWithinRatio(*a.buyIn, *b.buyIn)
	}
	timeOK := false
	if timeKnown {
		diff := a.startMinutes - b.startMinutes
		if diff < 0 {
			diff = -diff
		}
		timeOK = diff <= startTimeWindowMins
	}

	switch {
	case buyInKnown && timeKnown:
		if buyInOK && timeOK {
			return similarityBoth
		}
		if buyInOK || timeOK {
			return similarityOne
		}
		return 0
	case buyInKnown:
		if buyInOK {
			return similarityDegraded
		}
		return 0
	case timeKnown:
		if timeOK {
			return similarityDegraded
		}
		return 0
	default:
		return 0
	}
}

// buyInsWithinRatio reports whether the larger buy-in is at most twice the
// smaller. Two free entries count as matching; free against paid does not.
func buyInsWithinRatio(a, b decimal.Decimal) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	if a.IsZero() || b.IsZero() {
		return false
	}
	lo, hi := a, b
	if lo.GreaterThan(hi) {
		lo, hi = hi, lo
	}
	return hi.Div(lo).LessThanOrEqual(decimal.NewFromFloat(buyInMaxRatio))
}

// describeCluster derives a candidate template from a cluster: the most
// common original name, falling back to a buy-in tier label.
func describeCluster(cluster []enriched) CandidateTemplate {
	nameCounts := make(map[string]int)
	var ids []string
	var buyIns []decimal.Decimal
	bestMinutes := -1
	var variant entities.GameVariant
	for _, e := range cluster {
		if e.t.Name != "" {
			nameCounts[e.t.Name]++
		}
		ids = append(ids, e.t.ID)
		if e.buyIn != nil {
			buyIns = append(buyIns, *e.buyIn)
		}
		if bestMinutes < 0 && e.startMinutes >= 0 {
			bestMinutes = e.startMinutes
		}
		if variant == "" {
			variant = e.variant
		}
	}

	typical := medianDecimal(buyIns)

	name := mostCommonName(nameCounts)
	if name == "" {
		name = buyInTierLabel(typical)
	} else {
		name = matching.DisplayName(name)
	}

	startTime := ""
	if bestMinutes >= 0 {
		startTime = fmt.Sprintf("%02d:%02d", bestMinutes/60, bestMinutes%60)
	}

	return CandidateTemplate{
		Name:          name,
		DayOfWeek:     cluster[0].day,
		SessionMode:   cluster[0].mode,
		GameVariant:   variant,
		StartTime:     startTime,
		TypicalBuyIn:  typical,
		Size:          len(cluster),
		TournamentIDs: ids,
	}
}

func mostCommonName(counts map[string]int) string {
	best := ""
	bestCount := 0
	for name, count := range counts {
		if count > bestCount || (count == bestCount && name < best) {
			best = name
			bestCount = count
		}
	}
	return best
}

var (
	tierMainEvent = decimal.NewFromInt(500)
	tierFeature   = decimal.NewFromInt(150)
	tierStandard  = decimal.NewFromInt(50)
)

// buyInTierLabel names a nameless cluster by its buy-in bracket
func buyInTierLabel(typical decimal.Decimal) string {
	switch {
	case typical.GreaterThanOrEqual(tierMainEvent):
		return "Main Event"
	case typical.GreaterThanOrEqual(tierFeature):
		return "Feature"
	case typical.GreaterThanOrEqual(tierStandard):
		return "Tournament"
	default:
		return "Micro"
	}
}

func medianDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	return sorted[len(sorted)/2]
}
