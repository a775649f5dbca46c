package metadata

import (
	"context"
	"sort"

	"github.com/reelkeep/reelkeep/internal/models"
)

// ReconcileRequest carries everything the six reconciliation strategies
// might need. Callers (identification and the scan pipeline) fill in
// whatever they have; a strategy that needs a field it wasn't given is
// simply skipped.
type ReconcileRequest struct {
	MediaType   models.MediaType
	Title       string
	FolderTitle string
	Year        *int
	IMDBHint    string
	Season      *int
	Episode     *int
}

const (
	fuzzyThresholdStandard = 0.90
	fuzzyThresholdFallback = 0.75
)

// Reconcile runs the six reconciliation strategies in order, stopping at
// the first that yields candidates, then applies the TV episode-existence
// filter.
func (r *Resolver) Reconcile(ctx context.Context, req ReconcileRequest) (*models.ReconciliationResult, error) {
	if id, ok := extractIMDBID(req.IMDBHint); ok {
		if m, err := r.FindByExternalID(ctx, id); err == nil && m != nil {
			m.Confidence = 0.95
			return r.finish(ctx, req, []*models.MetadataMatch{m}, models.StrategyImdbID)
		}
	}

	if req.Year != nil {
		if candidates, err := r.searchScored(ctx, req.MediaType, req.Title, req.Year, 0.85, fuzzyThresholdStandard); err == nil && len(candidates) > 0 {
			return r.finish(ctx, req, candidates, models.StrategyFilenameWithYear)
		}
	}

	if req.MediaType == models.MediaTypeEpisode && req.FolderTitle != "" && req.Year != nil {
		if candidates, err := r.searchScored(ctx, req.MediaType, req.FolderTitle, req.Year, 0.80, fuzzyThresholdStandard); err == nil && len(candidates) > 0 {
			return r.finish(ctx, req, candidates, models.StrategyFolderWithYear)
		}
	}

	if candidates, err := r.searchScored(ctx, req.MediaType, req.Title, nil, 0.70, fuzzyThresholdStandard); err == nil && len(candidates) > 0 {
		return r.finish(ctx, req, candidates, models.StrategyFilenameOnly)
	}

	if alt := stripArticle(req.Title); alt != req.Title {
		if candidates, err := r.searchScored(ctx, req.MediaType, alt, nil, 0.65, fuzzyThresholdStandard); err == nil && len(candidates) > 0 {
			return r.finish(ctx, req, candidates, models.StrategyAlternativeTitle)
		}
	}

	for _, variant := range titleVariants(req.Title) {
		candidates, err := r.search(ctx, req.MediaType, variant, nil)
		if err != nil {
			continue
		}
		var scored []*models.MetadataMatch
		for _, c := range candidates {
			fuzzy := bestSimilarity(variant, c.Title, c.OriginalTitle)
			if fuzzy < fuzzyThresholdFallback {
				continue
			}
			conf := fuzzy * 0.75
			if conf > 0.75 {
				conf = 0.75
			}
			c.Confidence = conf
			scored = append(scored, c)
		}
		if len(scored) > 0 {
			return r.finish(ctx, req, scored, models.StrategyFuzzySearch)
		}
	}

	return &models.ReconciliationResult{}, nil
}

func (r *Resolver) search(ctx context.Context, mediaType models.MediaType, title string, year *int) ([]*models.MetadataMatch, error) {
	if mediaType == models.MediaTypeEpisode {
		return r.SearchTV(ctx, title, year)
	}
	return r.SearchMovie(ctx, title, year)
}

// searchScored runs a search and keeps only candidates whose title similarity
// clears threshold, scaling baseConfidence by the fuzzy score.
func (r *Resolver) searchScored(ctx context.Context, mediaType models.MediaType, title string, year *int, baseConfidence, threshold float64) ([]*models.MetadataMatch, error) {
	candidates, err := r.search(ctx, mediaType, title, year)
	if err != nil {
		return nil, err
	}
	var kept []*models.MetadataMatch
	for _, c := range candidates {
		fuzzy := bestSimilarity(title, c.Title, c.OriginalTitle)
		if fuzzy < threshold {
			continue
		}
		c.Confidence = baseConfidence * fuzzy
		if c.Confidence > 1.0 {
			c.Confidence = 1.0
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// finish applies the episode-existence filter (TV, multiple candidates, known
// season/episode), then ranks by confidence and splits best/alternatives.
func (r *Resolver) finish(ctx context.Context, req ReconcileRequest, candidates []*models.MetadataMatch, strategy models.IdentificationStrategy) (*models.ReconciliationResult, error) {
	if req.MediaType == models.MediaTypeEpisode && len(candidates) > 1 && req.Season != nil && req.Episode != nil {
		candidates = r.filterByEpisodeExistence(ctx, candidates, *req.Season, *req.Episode)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	// Candidate confidences are reported as ranked, not adjusted: the
	// multi-candidate ambiguity penalty belongs to the confidence scorer,
	// which detects it from these values downstream.
	return &models.ReconciliationResult{
		Best:         candidates[0],
		Alternatives: candidates[1:],
		Strategy:     strategy,
	}, nil
}

// filterByEpisodeExistence keeps only TV candidates for which fetch_episode
// confirms the season/episode exists; ties among survivors favour the
// candidate with more seasons. If nothing survives, all candidates are kept
// as a soft warning rather than an empty result.
func (r *Resolver) filterByEpisodeExistence(ctx context.Context, candidates []*models.MetadataMatch, season, episode int) []*models.MetadataMatch {
	var kept []*models.MetadataMatch
	for _, c := range candidates {
		details, err := r.FetchEpisode(ctx, c.ExternalID, season, episode)
		if err != nil || details == nil || !details.Exists {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return candidates
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].SeasonCount != kept[j].SeasonCount {
			return kept[i].SeasonCount > kept[j].SeasonCount
		}
		return kept[i].Confidence > kept[j].Confidence
	})
	return kept
}
