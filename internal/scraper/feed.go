package scraper

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// FeedItem is one entry of a syndication feed, reduced to what the capture
// run needs: a link to fetch and a title for logs.
type FeedItem struct {
	Title string
	Link  string
}

// rssFeed represents the RSS 2.0 feed structure.
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title string `xml:"title"`
	Link  string `xml:"link"`
	GUID  string `xml:"guid"`
}

// atomFeed represents the Atom feed structure.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title string     `xml:"title"`
	Links []atomLink `xml:"link"`
	ID    string     `xml:"id"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// ParseFeed decodes a feed body as RSS 2.0 first and falls back to Atom.
// A feed that parses cleanly but has no entries is an empty result, not an
// error. Entries without a resolvable link are dropped.
func ParseFeed(body []byte) ([]FeedItem, error) {
	var rss rssFeed
	rssErr := xml.Unmarshal(body, &rss)
	if rssErr == nil {
		items := make([]FeedItem, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			link := strings.TrimSpace(item.Link)
			if link == "" {
				link = strings.TrimSpace(item.GUID)
			}
			if link == "" {
				continue
			}
			items = append(items, FeedItem{Title: strings.TrimSpace(item.Title), Link: link})
		}
		return items, nil
	}

	var atom atomFeed
	atomErr := xml.Unmarshal(body, &atom)
	if atomErr == nil {
		items := make([]FeedItem, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			link := atomEntryLink(entry)
			if link == "" {
				continue
			}
			items = append(items, FeedItem{Title: strings.TrimSpace(entry.Title), Link: link})
		}
		return items, nil
	}

	return nil, fmt.Errorf("parse as RSS (%v) or Atom (%v) failed", rssErr, atomErr)
}

// atomEntryLink prefers the alternate link, then any link, then the entry ID.
func atomEntryLink(entry atomEntry) string {
	for _, l := range entry.Links {
		if l.Rel == "alternate" || l.Rel == "" {
			if href := strings.TrimSpace(l.Href); href != "" {
				return href
			}
		}
	}
	for _, l := range entry.Links {
		if href := strings.TrimSpace(l.Href); href != "" {
			return href
		}
	}
	return strings.TrimSpace(entry.ID)
}
