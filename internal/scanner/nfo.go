package scanner

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
)

// nfoHint is the handful of fields the scan pipeline can use from an NFO
// sidecar before ever calling the metadata resolver. Only the IMDB id,
// title and year are read, and reconciliation consumes only the IMDB id;
// the rest of the Kodi NFO schema is ignored.
type nfoHint struct {
	IMDBID string
	Title  string
	Year   string
}

type nfoUniqueID struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type nfoXML struct {
	Title     string        `xml:"title"`
	Year      string        `xml:"year"`
	IMDBId    string        `xml:"imdbid"`
	ID        string        `xml:"id"`
	UniqueIDs []nfoUniqueID `xml:"uniqueid"`
}

// NFOReader locates and reads the NFO sidecar for a media file, if any. The
// default implementation is readNFOSidecar; tests substitute a stub.
type NFOReader func(mediaPath string) (*nfoHint, bool)

// readNFOSidecar looks for "<stem>.nfo" next to mediaPath (the exact-filename
// match, without the broader movie.nfo/tvshow.nfo fallbacks, since
// reconciliation only wants
// sidecar import, not a full NFO discovery pass).
func readNFOSidecar(mediaPath string) (*nfoHint, bool) {
	dir := filepath.Dir(mediaPath)
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	nfoPath := filepath.Join(dir, base+".nfo")

	data, err := os.ReadFile(nfoPath)
	if err != nil {
		return nil, false
	}

	var parsed nfoXML
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, false
	}
	if parsed.Title == "" {
		return nil, false
	}

	hint := &nfoHint{Title: parsed.Title, Year: parsed.Year}
	for _, uid := range parsed.UniqueIDs {
		if uid.Type == "imdb" {
			hint.IMDBID = strings.TrimSpace(uid.Value)
		}
	}
	if hint.IMDBID == "" && parsed.IMDBId != "" {
		hint.IMDBID = parsed.IMDBId
	}
	if hint.IMDBID == "" && strings.HasPrefix(parsed.ID, "tt") {
		hint.IMDBID = parsed.ID
	}
	return hint, true
}
