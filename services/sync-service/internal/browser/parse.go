package browser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/calendar"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/textnorm"
)

var errNoCard = errors.New("event element has no card body")

var backgroundRe = regexp.MustCompile(`(?i)background-color\s*:\s*([^;]+)`)

// parseCard reads the four paragraph lines of an event card from the event
// element's outer HTML.
func parseCard(outerHTML string) (calendar.CardFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return calendar.CardFields{}, err
	}
	card := doc.Find(cardSelector).First()
	if card.Length() == 0 {
		return calendar.CardFields{}, errNoCard
	}

	ps := card.Find("p")
	line := func(i int) string {
		return textnorm.CollapseSpace(ps.Eq(i).Text())
	}

	bg := ""
	if style, ok := card.Attr("style"); ok {
		if m := backgroundRe.FindStringSubmatch(style); m != nil {
			bg = strings.TrimSpace(m[1])
		}
	}

	return calendar.CardFields{
		Client:     line(0),
		Service:    line(1),
		Specialist: line(2),
		TimeRange:  line(3),
		Background: bg,
	}, nil
}

// parseOverlay splits an open hover menu into its paragraph lines and its
// full text. Text keeps one text node per line so adjacent numbers never fuse.
func parseOverlay(outerHTML string) (calendar.Overlay, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return calendar.Overlay{}, err
	}
	root := doc.Find("body")

	var lines []string
	root.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := textnorm.CollapseSpace(s.Text()); t != "" {
			lines = append(lines, t)
		}
	})

	var texts []string
	collectText(root, &texts)

	return calendar.Overlay{Text: strings.Join(texts, "\n"), Lines: lines}, nil
}

func collectText(s *goquery.Selection, out *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			if t := textnorm.CollapseSpace(c.Text()); t != "" {
				*out = append(*out, t)
			}
		case "script", "style":
		default:
			collectText(c, out)
		}
	})
}
