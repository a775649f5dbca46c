package metadata

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/reelkeep/reelkeep/internal/models"
)

// NFOData is the trimmed subset of a Kodi/Jellyfin-compatible NFO sidecar
// that feeds reconciliation: a title/year/external-id hint consulted before
// the TMDB resolver, never required by any scan operation.
type NFOData struct {
	Title         string
	OriginalTitle string
	Year          *int
	IMDBID        string
	TMDBID        string
}

type xmlUniqueID struct {
	Type    string `xml:"type,attr"`
	Default string `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

type xmlNFO struct {
	XMLName       xml.Name
	Title         string        `xml:"title"`
	OriginalTitle string        `xml:"originaltitle"`
	Year          int           `xml:"year"`
	UniqueIDs     []xmlUniqueID `xml:"uniqueid"`
}

// NFOReader is an injectable NFO enrichment source; FileNFOReader is the
// filesystem-backed implementation. The scan pipeline does not use it: it
// reads sidecars through its own scanner.NFOReader.
type NFOReader interface {
	Read(mediaFilePath string, mediaType models.MediaType) (*NFOData, bool)
}

// FileNFOReader discovers and parses the `<stem>.nfo` (movie) or
// `tvshow.nfo` (show folder) sidecar alongside a media file.
type FileNFOReader struct{}

func (FileNFOReader) Read(mediaFilePath string, mediaType models.MediaType) (*NFOData, bool) {
	path := FindNFOFile(mediaFilePath, mediaType)
	if path == "" {
		return nil, false
	}
	data, err := parseNFOFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// FindNFOFile locates the sidecar path without requiring it to exist-checked
// by the caller; it returns "" if no candidate file is present on disk.
func FindNFOFile(mediaFilePath string, mediaType models.MediaType) string {
	ext := filepath.Ext(mediaFilePath)
	stem := strings.TrimSuffix(mediaFilePath, ext)

	candidates := []string{stem + ".nfo"}
	if mediaType == models.MediaTypeEpisode {
		candidates = append(candidates, filepath.Join(filepath.Dir(filepath.Dir(mediaFilePath)), "tvshow.nfo"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func parseNFOFile(path string) (*NFOData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed xmlNFO
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	data := &NFOData{Title: parsed.Title, OriginalTitle: parsed.OriginalTitle}
	if parsed.Year > 0 {
		y := parsed.Year
		data.Year = &y
	}
	for _, id := range parsed.UniqueIDs {
		switch strings.ToLower(id.Type) {
		case "imdb":
			data.IMDBID = id.Value
		case "tmdb":
			data.TMDBID = id.Value
		}
	}
	return data, nil
}
