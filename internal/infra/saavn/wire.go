package saavn

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/osa030/saavnbox/internal/domain/catalog"
)

// envelope wraps every API response.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type searchData[T any] struct {
	Total   number `json:"total"`
	Start   number `json:"start"`
	Results []T    `json:"results"`
}

type linkJSON struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
	Link    string `json:"link"`
}

type artistRefJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type artistsJSON struct {
	Primary []artistRefJSON `json:"primary"`
}

type songJSON struct {
	ID              string      `json:"id"`
	Name            text        `json:"name"`
	Title           text        `json:"title"`
	Label           text        `json:"label"`
	Duration        number      `json:"duration"`
	ExplicitContent flag        `json:"explicitContent"`
	Album           albumRef    `json:"album"`
	Artists         artistsJSON `json:"artists"`
	PrimaryArtists  text        `json:"primaryArtists"`
	Image           []linkJSON  `json:"image"`
	DownloadURL     []linkJSON  `json:"downloadUrl"`
}

type albumJSON struct {
	ID          string      `json:"id"`
	Name        text        `json:"name"`
	Title       text        `json:"title"`
	Description text        `json:"description"`
	Year        text        `json:"year"`
	Label       text        `json:"label"`
	SongCount   number      `json:"songCount"`
	Artists     artistsJSON `json:"artists"`
	Image       []linkJSON  `json:"image"`
	Songs       []songJSON  `json:"songs"`
}

type artistJSON struct {
	ID       string     `json:"id"`
	Name     text       `json:"name"`
	Title    text       `json:"title"`
	Role     text       `json:"role"`
	Image    []linkJSON `json:"image"`
	Songs    []songJSON `json:"songs"`
	TopSongs []songJSON `json:"topSongs"`
}

type playlistJSON struct {
	ID          string      `json:"id"`
	Name        text        `json:"name"`
	Title       text        `json:"title"`
	Description text        `json:"description"`
	SongCount   number      `json:"songCount"`
	Artists     artistsJSON `json:"artists"`
	Image       []linkJSON  `json:"image"`
	Songs       []songJSON  `json:"songs"`
}

// number accepts a JSON number, a numeric string or null. Anything else decodes to zero.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = number(f)
	return nil
}

// text accepts a JSON string, a number or null.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	default:
		*t = text(b)
	}
	return nil
}

// flag accepts true/false as booleans, strings or 0/1.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// albumRef accepts either an album object or a bare album name.
type albumRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *albumRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &a.Name)
	}
	type plain albumRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*a = albumRef(p)
	return nil
}

func toLinks(links []linkJSON) []catalog.Link {
	result := make([]catalog.Link, 0, len(links))
	for _, l := range links {
		result = append(result, catalog.Link{Quality: l.Quality, URL: l.URL, Link: l.Link})
	}
	return result
}

func toArtistNames(artists artistsJSON, fallback text) []string {
	names := make([]string, 0, len(artists.Primary))
	for _, a := range artists.Primary {
		if name := strings.TrimSpace(a.Name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		return names
	}
	for _, name := range strings.Split(string(fallback), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (s songJSON) toCatalog() catalog.Song {
	return catalog.Song{
		ID:             s.ID,
		Name:           string(s.Name),
		Title:          string(s.Title),
		PrimaryArtists: toArtistNames(s.Artists, s.PrimaryArtists),
		Label:          string(s.Label),
		Album:          s.Album.Name,
		Images:         toLinks(s.Image),
		Downloads:      toLinks(s.DownloadURL),
		Duration:       float64(s.Duration),
		Unit:           catalog.Seconds,
		Explicit:       bool(s.ExplicitContent),
	}
}

func toSongs(songs []songJSON) []catalog.Song {
	result := make([]catalog.Song, 0, len(songs))
	for _, s := range songs {
		result = append(result, s.toCatalog())
	}
	return result
}

func (a albumJSON) toCatalog() catalog.Album {
	return catalog.Album{
		ID:             a.ID,
		Name:           string(a.Name),
		Title:          string(a.Title),
		PrimaryArtists: toArtistNames(a.Artists, ""),
		Label:          string(a.Label),
		Year:           string(a.Year),
		Images:         toLinks(a.Image),
		SongCount:      int(a.SongCount),
		Songs:          toSongs(a.Songs),
	}
}

func (a artistJSON) toCatalog() catalog.Artist {
	return catalog.Artist{
		ID:       a.ID,
		Name:     string(a.Name),
		Title:    string(a.Title),
		Images:   toLinks(a.Image),
		Songs:    toSongs(a.Songs),
		TopSongs: toSongs(a.TopSongs),
	}
}

func (p playlistJSON) toCatalog() catalog.Playlist {
	var owner string
	if names := toArtistNames(p.Artists, ""); len(names) > 0 {
		owner = names[0]
	}
	return catalog.Playlist{
		ID:          p.ID,
		Name:        string(p.Name),
		Title:       string(p.Title),
		Description: string(p.Description),
		Owner:       owner,
		Images:      toLinks(p.Image),
		SongCount:   int(p.SongCount),
		Songs:       toSongs(p.Songs),
	}
}
