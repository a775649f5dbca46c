package identify

import (
	"testing"

	"github.com/reelkeep/reelkeep/internal/models"
)

func TestIdentifyContent_EpisodeWithSeasonAndEpisode(t *testing.T) {
	r := IdentifyContent("/media/Shows/Breaking Bad/Season 3/Breaking.Bad.S03E07.720p.WEB-DL.mkv")

	if r.MediaType != models.MediaTypeEpisode {
		t.Fatalf("media type = %v, want episode", r.MediaType)
	}
	if r.Season == nil || *r.Season != 3 {
		t.Fatalf("season = %v, want 3", r.Season)
	}
	if r.Episode == nil || *r.Episode != 7 {
		t.Fatalf("episode = %v, want 7", r.Episode)
	}
}

func TestIdentifyContent_MultiEpisodeExpansion(t *testing.T) {
	r := IdentifyContent("/media/Shows/The Wire/Season 2/The.Wire.S02E09E10.1080p.BluRay.x265.mkv")

	want := []int{9, 10}
	if len(r.MultiEpisode) != len(want) {
		t.Fatalf("multi episode = %v, want %v", r.MultiEpisode, want)
	}
	for i, e := range want {
		if r.MultiEpisode[i] != e {
			t.Errorf("multi episode[%d] = %d, want %d", i, r.MultiEpisode[i], e)
		}
	}
}

func TestIdentifyContent_SeasonFolderCoercesUnknownType(t *testing.T) {
	r := IdentifyContent("/media/Shows/Some Show/Season 1/some show episode.mkv")

	if r.MediaType != models.MediaTypeEpisode {
		t.Fatalf("media type = %v, want episode (coerced by season folder)", r.MediaType)
	}
	if r.Season == nil || *r.Season != 1 {
		t.Fatalf("season = %v, want 1 from folder", r.Season)
	}
}

func TestIdentifyContent_StrategyReflectsYearPresence(t *testing.T) {
	withYear := IdentifyContent("/media/Movies/Wonka (2023)/Wonka.2023.720p.BluRay.mkv")
	if withYear.Strategy != models.StrategyFilenameWithYear {
		t.Errorf("strategy = %v, want FilenameWithYear", withYear.Strategy)
	}

	withoutYear := IdentifyContent("/media/Movies/some_random_title.mkv")
	if withoutYear.Strategy != models.StrategyFilenameOnly {
		t.Errorf("strategy = %v, want FilenameOnly", withoutYear.Strategy)
	}
}
