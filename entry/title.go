// Title formatter (C9, spec §4.9): builds the on-disk filename stem from
// configurable components. Ported from the original's manual snprintf
// concatenation, but using ncruces/go-strftime for the date/time tokens
// instead of a second hand-rolled layout string.
package entry

import (
	"fmt"
	"strings"

	"github.com/ncruces/go-strftime"
)

// TitleConfig is the subset of DVR configuration the formatter needs. It is
// a plain value type (not config.Data) so this package stays independent
// of the config package; the engine projects config.Data into a
// TitleConfig at call sites.
type TitleConfig struct {
	ChannelInTitle    bool
	OmitTitle         bool
	EpisodeInTitle    bool
	EpisodeBeforeDate bool
	SubtitleInTitle   bool
	DirectoryDateDays bool // unused by the stem itself; carried for directory-layer callers
}

// EpisodeStem formats a season/episode pair as "S%02dE%02d", omitting
// whichever component is zero (spec §4.9).
func EpisodeStem(season, episode int) string {
	switch {
	case season > 0 && episode > 0:
		return fmt.Sprintf("S%02dE%02d", season, episode)
	case season > 0:
		return fmt.Sprintf("S%02d", season)
	case episode > 0:
		return fmt.Sprintf("E%02d", episode)
	default:
		return ""
	}
}

// TitleStem builds the filename stem for e under cfg. season/episode come
// from the bound broadcast's episode numbering (0 for "unknown"); lang
// selects which localized title/subtitle to use.
func (e *Entry) TitleStem(cfg TitleConfig, lang string, season, episode int) string {
	var parts []string

	episodeStem := EpisodeStem(season, episode)

	var head string
	if cfg.ChannelInTitle && e.Channel != nil {
		head = e.Channel.Name() + "-"
	}

	if !cfg.OmitTitle {
		title := e.Title.Get(lang)
		if title == "" {
			title = "untitled"
		}
		parts = append(parts, title)
	}

	if cfg.EpisodeInTitle && cfg.EpisodeBeforeDate && episodeStem != "" {
		parts = append(parts, episodeStem)
	}

	if cfg.SubtitleInTitle {
		if sub := e.Subtitle.Get(lang); sub != "" {
			parts = append(parts, sub)
		}
	}

	parts = append(parts, strftime.Format("%Y-%m-%d", e.Start))
	parts = append(parts, strftime.Format("%H-%M", e.Start))

	if cfg.EpisodeInTitle && !cfg.EpisodeBeforeDate && episodeStem != "" {
		parts = append(parts, episodeStem)
	}

	return head + sanitizeStem(strings.Join(parts, "."))
}

// sanitizeStem strips path separators and other filesystem-hostile
// characters a title/subtitle might legitimately contain.
func sanitizeStem(s string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", "\x00", "")
	return r.Replace(s)
}
