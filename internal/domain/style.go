package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Style describes one selectable portrait style.
type Style struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ThumbnailKey string `json:"thumbnail_key"`
}

var styleIDs = []string{
	"renaissance",
	"watercolor",
	"oil-painting",
	"pop-art",
	"charcoal-sketch",
	"anime",
	"royal-portrait",
}

var titleCaser = cases.Title(language.English)

// Styles returns the selectable style catalog in presentation order.
func Styles() []Style {
	out := make([]Style, 0, len(styleIDs))
	for _, id := range styleIDs {
		out = append(out, Style{
			ID:           id,
			Name:         titleCaser.String(strings.ReplaceAll(id, "-", " ")),
			ThumbnailKey: fmt.Sprintf("thumbnails/%s.jpg", id),
		})
	}
	return out
}

// ValidStyle reports whether id names a known style.
func ValidStyle(id string) bool {
	for _, known := range styleIDs {
		if known == id {
			return true
		}
	}
	return false
}
