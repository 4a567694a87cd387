package bot

import (
	"fmt"
	"html"
	"strings"

	"hntldr/internal/config"
	"hntldr/internal/model"
)

// HNItemURL is the discussion page prefix for a story id.
const HNItemURL = "https://news.ycombinator.com/item?id="

// View is what a notification shows.
type View struct {
	StoryID  string
	Title    string
	URL      string
	Hook     string
	Score    int
	Comments int
}

// ViewOf builds the view of an already posted story with fresh counts.
func ViewOf(rec model.PostRecord, score, comments int) View {
	return View{
		StoryID:  rec.StoryID,
		Title:    rec.Title,
		URL:      rec.URL,
		Hook:     rec.Hook,
		Score:    score,
		Comments: comments,
	}
}

// Render formats v as an HTML notification with inline buttons.
//
//	<b>Title</b>
//
//	Hook sentence.
//
//	<b>142 points</b> 🔥🔥
func Render(v View, flames config.Flames) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(v.Title))

	hook := strings.TrimSpace(v.Hook)
	if hook != "" && hook != strings.TrimSpace(v.Title) {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(hook))
	}

	fmt.Fprintf(&b, "\n<b>%d points</b>", v.Score)
	if f := Flames(v.Score, flames); f != "" {
		b.WriteString(" ")
		b.WriteString(f)
	}

	return Message{Text: b.String(), Buttons: buttons(v)}
}

// Flames returns up to three 🔥 depending on how many thresholds score meets.
func Flames(score int, f config.Flames) string {
	if !f.Enabled {
		return ""
	}
	n := 0
	for _, t := range f.Thresholds {
		if t > 0 && score >= t {
			n++
		}
	}
	return strings.Repeat("🔥", n)
}

func buttons(v View) []Button {
	hn := HNItemURL + v.StoryID
	if v.URL == "" {
		return []Button{{Text: "Read on HN", URL: hn}}
	}
	return []Button{
		{Text: "Read", URL: v.URL},
		{Text: fmt.Sprintf("%d Comments", v.Comments), URL: hn},
	}
}
