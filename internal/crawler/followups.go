package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/odds-history-crawler/internal/links"
)

// Processed remembers the targets already handled in one run, by normalized key.
type Processed map[DatasetKey]struct{}

// Mark records key as handled.
func (p Processed) Mark(key DatasetKey) {
	p[key.Normalized()] = struct{}{}
}

// Has reports whether key was already handled.
func (p Processed) Has(key DatasetKey) bool {
	_, ok := p[key.Normalized()]
	return ok
}

// FollowUp selects which discovered links become targets.
type FollowUp struct {
	Sport        string
	Season       string
	Teams        bool
	Competitions bool
	Exclude      []links.Competition
}

// NextTargets turns discovered links into historical follow-up targets. Targets already
// processed in this run or already persisted according to index are left out. An index
// error is logged and the target is kept.
func NextTargets(
	ctx context.Context,
	set *links.Set,
	follow FollowUp,
	processed Processed,
	index Index,
	logger *zap.Logger,
) []Target {
	if set == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var candidates []Target
	if follow.Teams {
		for _, team := range set.Teams() {
			if team.ID == "" || team.Name == "" {
				continue
			}
			candidates = append(candidates, TeamSeason{TeamID: team.ID, TeamName: team.Name, SeasonName: follow.Season})
		}
	}
	if follow.Competitions {
		pairs := links.Dedupe(set.Competitions())
		for _, ex := range follow.Exclude {
			pairs = links.Without(pairs, ex)
		}
		for _, c := range pairs {
			candidates = append(candidates, CompetitionSeason{Region: c.Region, Competition: c.Competition, SeasonName: follow.Season})
		}
	}

	var out []Target
	for _, target := range candidates {
		key := KeyFor(target, follow.Sport, ModeHistorical)
		if processed.Has(key) {
			continue
		}
		processed.Mark(key)
		if index != nil {
			exists, err := index.Exists(ctx, key)
			if err != nil {
				logger.Warn("idempotency check failed, keeping target", zap.Stringer("target", target), zap.Error(err))
			} else if exists {
				logger.Info("dataset already stored, skipping follow-up", zap.Stringer("target", target))
				continue
			}
		}
		out = append(out, target)
	}
	return out
}
