package links

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultBaseURL is the site root used when none is configured.
const DefaultBaseURL = "https://www.oddsportal.com"

// ErrMalformedLink is returned when a locator does not have the expected path shape.
var ErrMalformedLink = errors.New("malformed link")

// Slug lowercases name, spells out "&", drops apostrophes and accents and dashes spaces.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.ReplaceAll(s, "'", "")
	s = stripAccents(s)
	return strings.Join(strings.Fields(s), "-")
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SeasonSlug renders "2023/2024" as "2023-2024".
func SeasonSlug(season string) string {
	return strings.ReplaceAll(strings.TrimSpace(season), "/", "-")
}

// CompetitionResultsURL builds the results listing of one competition season.
func CompetitionResultsURL(base, sport, region, competition, season string) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s/results/",
		trimBase(base), Slug(sport), Slug(region), Slug(competition), SeasonSlug(season))
}

// UpcomingURL builds the fixtures listing of a competition.
func UpcomingURL(base, sport, region, competition string) string {
	return fmt.Sprintf("%s/%s/%s/%s/", trimBase(base), Slug(sport), Slug(region), Slug(competition))
}

// TeamURL builds a team's landing page.
func TeamURL(base, sport, teamName, teamID string) string {
	return fmt.Sprintf("%s/%s/team/%s/%s/", trimBase(base), Slug(sport), Slug(teamName), strings.TrimSpace(teamID))
}

// TeamResultsURL builds the "all results" search page for a team ID.
func TeamResultsURL(base, teamID string) string {
	return fmt.Sprintf("%s/search/results/:%s/", trimBase(base), strings.TrimSpace(teamID))
}

// Absolute resolves href against base. Absolute hrefs are returned unchanged.
func Absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return trimBase(base) + href
}

var (
	resultsSuffix = regexp.MustCompile(`/results/?$`)
	seasonSuffix  = regexp.MustCompile(`-\d{4}(-\d{4})?$`)
)

// YearLinks rewrites a results locator into one locator per calendar year of season.
// It serves competitions that are labelled by a single year. Any season or year suffix
// already on the competition slug is replaced.
func YearLinks(locator, season string) (string, string, error) {
	years := strings.Split(SeasonSlug(season), "-")
	if len(years) != 2 || len(years[0]) != 4 || len(years[1]) != 4 {
		return "", "", fmt.Errorf("%w: season %q must be YYYY-YYYY or YYYY/YYYY", ErrMalformedLink, season)
	}
	if !resultsSuffix.MatchString(locator) {
		return "", "", fmt.Errorf("%w: %q has no /results/ suffix", ErrMalformedLink, locator)
	}
	base := seasonSuffix.ReplaceAllString(resultsSuffix.ReplaceAllString(locator, ""), "")
	return base + "-" + years[0] + "/results/", base + "-" + years[1] + "/results/", nil
}

// ParseCompetitionURL extracts the (region, competition) pair from a competition locator.
// "/football/europe/champions-league-2022-2023/" yields ("europe", "champions league").
func ParseCompetitionURL(locator string) (Competition, error) {
	parts, err := pathParts(locator)
	if err != nil {
		return Competition{}, err
	}
	if len(parts) < 3 {
		return Competition{}, fmt.Errorf("%w: %q needs sport/region/competition", ErrMalformedLink, locator)
	}
	name := seasonSuffix.ReplaceAllString(parts[2], "")
	return Competition{
		Region:      parts[1],
		Competition: strings.ReplaceAll(name, "-", " "),
	}, nil
}

// ParseTeamURL extracts the team name and ID from ".../<team-slug>/<id>/".
func ParseTeamURL(locator string) (Team, error) {
	parts, err := pathParts(locator)
	if err != nil {
		return Team{}, err
	}
	if len(parts) < 2 {
		return Team{}, fmt.Errorf("%w: %q needs team slug and id", ErrMalformedLink, locator)
	}
	u, _ := url.Parse(strings.TrimSpace(locator))
	return Team{
		Name: strings.ReplaceAll(parts[len(parts)-2], "-", " "),
		ID:   parts[len(parts)-1],
		Path: u.Path,
	}, nil
}

func pathParts(locator string) ([]string, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLink, err)
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

func trimBase(base string) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
