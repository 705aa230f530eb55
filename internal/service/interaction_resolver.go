package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/metrics"
	"github.com/pkddi-mcp-server/internal/oracle"
)

// InteractionResolver evaluates every unordered pair of a drug list. Resolved pairs are
// memoized in an LRU keyed by the order-independent pair key; misses are sent to the
// oracle with bounded concurrency.
type InteractionResolver struct {
	oracle         domain.Oracle
	cache          *lru.Cache[string, domain.DrugInteraction]
	maxConcurrency int
	logger         *logrus.Logger

	stats   ResolverStats
	statsMu sync.RWMutex
}

// ResolverStats represents interaction cache statistics
type ResolverStats struct {
	CacheHits      int64     `json:"cache_hits"`
	CacheMisses    int64     `json:"cache_misses"`
	OracleFailures int64     `json:"oracle_failures"`
	PairsEvaluated int64     `json:"pairs_evaluated"`
	LastReset      time.Time `json:"last_reset"`
}

// NewInteractionResolver creates a new interaction resolver
func NewInteractionResolver(oracle domain.Oracle, config domain.SimulationConfig, logger *logrus.Logger) (*InteractionResolver, error) {
	if config.InteractionCacheSize <= 0 {
		config.InteractionCacheSize = 4096
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}

	cache, err := lru.New[string, domain.DrugInteraction](config.InteractionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create interaction cache: %w", err)
	}

	return &InteractionResolver{
		oracle:         oracle,
		cache:          cache,
		maxConcurrency: config.MaxConcurrency,
		logger:         logger,
		stats:          ResolverStats{LastReset: time.Now()},
	}, nil
}

// Pairs returns all unordered pairs (i<j) of drugs after case-insensitive de-duplication.
// Names keep the caller's spelling and order of first appearance.
func Pairs(drugs []string) []domain.DrugPair {
	seen := make(map[string]bool, len(drugs))
	unique := make([]string, 0, len(drugs))
	for _, d := range drugs {
		key := domain.NormalizeDrugName(d)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, strings.TrimSpace(d))
	}

	var pairs []domain.DrugPair
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			pairs = append(pairs, domain.DrugPair{DrugA: unique[i], DrugB: unique[j]})
		}
	}
	return pairs
}

// Resolve returns the interactions of severity other than none among drugs. Pairs the
// oracle could not answer are listed as unchecked and mark the report degraded.
func (r *InteractionResolver) Resolve(ctx context.Context, drugs []string, patient *domain.PatientProfile) (*domain.InteractionReport, error) {
	pairs := Pairs(drugs)
	report := &domain.InteractionReport{
		Interactions:   []domain.DrugInteraction{},
		PairsEvaluated: len(pairs),
	}
	if len(pairs) == 0 {
		return report, nil
	}

	resolved := make([]*domain.DrugInteraction, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, pair := range pairs {
		g.Go(func() error {
			interaction, err := r.resolvePair(gctx, pair, patient)
			if err != nil {
				r.logger.WithFields(logrus.Fields{
					"drug_a": pair.DrugA,
					"drug_b": pair.DrugB,
				}).WithError(err).Warn("Interaction pair could not be checked")
				return nil
			}
			resolved[i] = &interaction
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, interaction := range resolved {
		if interaction == nil {
			report.Unchecked = append(report.Unchecked, pairs[i])
			continue
		}
		if interaction.Severity != domain.SeverityNone {
			report.Interactions = append(report.Interactions, *interaction)
		}
	}
	report.Degraded = len(report.Unchecked) > 0

	r.logger.WithFields(logrus.Fields{
		"drugs":        len(drugs),
		"pairs":        len(pairs),
		"interactions": len(report.Interactions),
		"unchecked":    len(report.Unchecked),
	}).Info("Interaction check completed")
	metrics.RecordSimulation("check_interactions", report.Degraded)

	return report, nil
}

// resolvePair returns the interaction for one pair with names in the pair's order
func (r *InteractionResolver) resolvePair(ctx context.Context, pair domain.DrugPair, patient *domain.PatientProfile) (domain.DrugInteraction, error) {
	r.incrementStat("pairs_evaluated")
	key := pair.Key()

	if cached, ok := r.cache.Get(key); ok {
		r.incrementStat("cache_hits")
		metrics.RecordCacheLookup("interaction", true)
		r.logger.WithField("pair", key).Debug("Interaction cache hit")
		return orient(cached, pair), nil
	}
	r.incrementStat("cache_misses")
	metrics.RecordCacheLookup("interaction", false)

	text, err := r.oracle.Complete(ctx, oracle.InteractionPrompt(pair.DrugA, pair.DrugB, patient))
	if err != nil {
		r.incrementStat("oracle_failures")
		return domain.DrugInteraction{}, err
	}

	resp, err := oracle.DecodeObject[oracle.InteractionResponse](text)
	if err != nil {
		r.incrementStat("oracle_failures")
		return domain.DrugInteraction{}, err
	}

	interaction := domain.DrugInteraction{
		DrugA:          pair.DrugA,
		DrugB:          pair.DrugB,
		Severity:       domain.ParseInteractionSeverity(resp.Severity),
		Mechanism:      orDefault(resp.Mechanism, "Unknown"),
		ClinicalEffect: orDefault(resp.ClinicalEffect, "Unknown"),
		Recommendation: orDefault(resp.Recommendation, "Monitor"),
		EvidenceLevel:  orDefault(resp.EvidenceLevel, "Low"),
	}

	// Concurrent misses on the same key may both write; entries are equivalent.
	r.cache.Add(key, interaction)
	return interaction, nil
}

// Invalidate removes a pair from the cache
func (r *InteractionResolver) Invalidate(drugA, drugB string) bool {
	return r.cache.Remove(domain.PairKey(drugA, drugB))
}

// Stats returns cache statistics
func (r *InteractionResolver) Stats() ResolverStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats
}

func (r *InteractionResolver) incrementStat(statName string) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	switch statName {
	case "cache_hits":
		r.stats.CacheHits++
	case "cache_misses":
		r.stats.CacheMisses++
	case "oracle_failures":
		r.stats.OracleFailures++
	case "pairs_evaluated":
		r.stats.PairsEvaluated++
	}
}

// orient returns a cached interaction with drug names in the requested pair's order
func orient(cached domain.DrugInteraction, pair domain.DrugPair) domain.DrugInteraction {
	cached.DrugA = pair.DrugA
	cached.DrugB = pair.DrugB
	return cached
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
