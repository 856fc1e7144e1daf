package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/odds-history-crawler/internal/links"
	"github.com/JakeFAU/odds-history-crawler/internal/season"
)

// Market is the betting market every dataset covers.
const Market = "1X2 and Fulltime result"

// Mode selects between a season history and a fixtures snapshot.
type Mode string

// Supported modes.
const (
	ModeHistorical Mode = "historical"
	ModeUpcoming   Mode = "upcoming"
)

// Spread controls how far discovered links are followed after the primary target.
type Spread string

// Supported spreads, each including the previous one.
const (
	SpreadNone Spread = "none"
	SpreadTeam Spread = "team"
	SpreadAll  Spread = "all"
)

// TargetKind names a Target variant.
type TargetKind string

// Target kinds.
const (
	KindCompetition TargetKind = "competition"
	KindTeam        TargetKind = "team"
)

// Target is one crawlable (entity, season) pair. Its concrete type is either
// CompetitionSeason or TeamSeason.
type Target interface {
	Kind() TargetKind
	Season() string
	String() string
	isTarget()
}

// CompetitionSeason targets one competition in one season.
type CompetitionSeason struct {
	Region      string
	Competition string
	SeasonName  string
}

// Kind implements Target.
func (CompetitionSeason) Kind() TargetKind { return KindCompetition }

// Season implements Target.
func (c CompetitionSeason) Season() string { return c.SeasonName }

func (c CompetitionSeason) String() string {
	return fmt.Sprintf("competition %s/%s %s", c.Region, c.Competition, c.SeasonName)
}

func (CompetitionSeason) isTarget() {}

// TeamSeason targets one team's matches in one season.
type TeamSeason struct {
	TeamID     string
	TeamName   string
	SeasonName string
}

// Kind implements Target.
func (TeamSeason) Kind() TargetKind { return KindTeam }

// Season implements Target.
func (t TeamSeason) Season() string { return t.SeasonName }

func (t TeamSeason) String() string {
	return fmt.Sprintf("team %s (%s) %s", t.TeamName, t.TeamID, t.SeasonName)
}

func (TeamSeason) isTarget() {}

// DatasetKey identifies a persisted dataset for the idempotency gate.
type DatasetKey struct {
	Kind        TargetKind
	Mode        Mode
	Sport       string
	Region      string
	Competition string
	Team        string
	Season      string
}

// KeyFor derives the persistence key of target.
func KeyFor(target Target, sport string, mode Mode) DatasetKey {
	key := DatasetKey{Kind: target.Kind(), Mode: mode, Sport: sport, Season: target.Season()}
	switch t := target.(type) {
	case CompetitionSeason:
		key.Region = t.Region
		key.Competition = t.Competition
	case TeamSeason:
		key.Team = t.TeamName
	default:
		panic(fmt.Sprintf("crawler: unknown target %T", target))
	}
	return key
}

// Normalized returns the key with every component case-folded and separators unified,
// so "2024/2025" and "2024-2025" compare equal.
func (k DatasetKey) Normalized() DatasetKey {
	return DatasetKey{
		Kind:        k.Kind,
		Mode:        k.Mode,
		Sport:       links.Fold(k.Sport),
		Region:      links.Fold(k.Region),
		Competition: links.Fold(k.Competition),
		Team:        links.Fold(k.Team),
		Season:      links.Fold(links.SeasonSlug(k.Season)),
	}
}

// ItemRef identifies one fetchable match.
type ItemRef struct {
	Locator   string
	SeasonTag string
}

// OddsPoint is one observation in an odds-movement series.
type OddsPoint struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"date_time"`
}

// OddsSeries holds the movement of the three 1X2 outcomes.
type OddsSeries struct {
	Home []OddsPoint `json:"home_win_odds"`
	Draw []OddsPoint `json:"draw_odds"`
	Away []OddsPoint `json:"away_win_odds"`
}

// MatchRecord is the extracted content of one match page.
type MatchRecord struct {
	HomeTeam    string     `json:"home_team"`
	AwayTeam    string     `json:"away_team"`
	Score       string     `json:"score"`
	Kickoff     time.Time  `json:"date_time"`
	Odds        OddsSeries `json:"odds"`
	Region      string     `json:"region,omitempty"`
	Competition string     `json:"competition,omitempty"`
	Locator     string     `json:"url,omitempty"`
}

// Dataset is the persisted unit: every record of one target.
type Dataset struct {
	RunID       string        `json:"run_id,omitempty"`
	Kind        TargetKind    `json:"kind"`
	Mode        Mode          `json:"mode"`
	Sport       string        `json:"sport"`
	Region      string        `json:"region,omitempty"`
	Competition string        `json:"competition,omitempty"`
	Team        string        `json:"team,omitempty"`
	TeamID      string        `json:"team_id,omitempty"`
	Season      string        `json:"season,omitempty"`
	Market      string        `json:"market"`
	Bookmaker   string        `json:"bookmaker"`
	CollectedAt time.Time     `json:"collected_at"`
	Events      []MatchRecord `json:"events"`
}

// Key derives the dataset's persistence key.
func (d Dataset) Key() DatasetKey {
	return DatasetKey{
		Kind:        d.Kind,
		Mode:        d.Mode,
		Sport:       d.Sport,
		Region:      d.Region,
		Competition: d.Competition,
		Team:        d.Team,
		Season:      d.Season,
	}
}

// Request is a user-supplied crawl request.
type Request struct {
	Sport       string `yaml:"sport" json:"sport"`
	Region      string `yaml:"region" json:"region"`
	Competition string `yaml:"competition" json:"competition"`
	Team        string `yaml:"team" json:"team"`
	TeamID      string `yaml:"team_id" json:"team_id"`
	Season      string `yaml:"season" json:"season"`
	Bookmaker   string `yaml:"bookmaker" json:"bookmaker"`
	Mode        Mode   `yaml:"mode" json:"mode"`
	Spread      Spread `yaml:"spread" json:"spread"`
}

// Target validates r and returns its primary target. It never touches the network.
func (r Request) Target() (Target, error) {
	competition := strings.TrimSpace(r.Competition)
	team := strings.TrimSpace(r.Team)
	teamID := strings.TrimSpace(r.TeamID)

	if strings.TrimSpace(r.Sport) == "" {
		return nil, invalidRequest("sport is required")
	}
	if strings.TrimSpace(r.Bookmaker) == "" {
		return nil, invalidRequest("bookmaker is required")
	}
	switch r.Mode {
	case ModeHistorical, ModeUpcoming:
	default:
		return nil, invalidRequest(fmt.Sprintf("mode %q must be historical or upcoming", r.Mode))
	}
	switch r.Spread {
	case "", SpreadNone, SpreadTeam, SpreadAll:
	default:
		return nil, invalidRequest(fmt.Sprintf("spread %q must be none, team or all", r.Spread))
	}

	hasTeam := team != "" || teamID != ""
	switch {
	case competition != "" && hasTeam:
		return nil, invalidRequest("competition and team are mutually exclusive")
	case competition == "" && !hasTeam:
		return nil, invalidRequest("either competition or team with team id is required")
	case hasTeam && (team == "" || teamID == ""):
		return nil, invalidRequest("team requires both team name and team id")
	case competition != "" && strings.TrimSpace(r.Region) == "":
		return nil, invalidRequest("competition requires region")
	}

	seasonName := ""
	if r.Mode == ModeHistorical {
		normalized, err := season.Normalize(r.Season)
		if err != nil {
			return nil, invalidRequest(err.Error())
		}
		seasonName = normalized
	} else {
		if hasTeam {
			return nil, invalidRequest("upcoming mode supports competitions only")
		}
		if r.spread() != SpreadNone {
			return nil, invalidRequest("upcoming mode does not follow links")
		}
	}

	if competition != "" {
		return CompetitionSeason{Region: strings.TrimSpace(r.Region), Competition: competition, SeasonName: seasonName}, nil
	}
	return TeamSeason{TeamID: teamID, TeamName: team, SeasonName: seasonName}, nil
}

func (r Request) spread() Spread {
	if r.Spread == "" {
		return SpreadNone
	}
	return r.Spread
}

// String summarizes the request for logs and reports.
func (r Request) String() string {
	subject := r.Competition
	if subject == "" {
		subject = r.Team
	}
	return fmt.Sprintf("%s %s/%s %s %s", r.Mode, r.Region, subject, r.Season, r.Bookmaker)
}
