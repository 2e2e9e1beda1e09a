package controller

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
	"github.com/dgnsrekt/rolefit/internal/config"
	"github.com/dgnsrekt/rolefit/internal/handoff"
)

// Site is a source-site profile compiled for use by the controller.
type Site struct {
	Name    string
	Label   string
	Channel handoff.Channel
	Script  cdpcontrol.SiteScript
	Matcher *handoff.PathMatcher
}

// NewSites compiles the site profiles in f.
func NewSites(f *config.SitesFile) ([]*Site, error) {
	sites := make([]*Site, 0, len(f.Sites))
	for _, p := range f.Sites {
		matcher, err := handoff.NewPathMatcher(p.Hosts, p.Paths)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", p.Name, err)
		}
		sites = append(sites, &Site{
			Name:  p.Name,
			Label: p.ButtonLabel,
			Channel: handoff.Channel{
				Name:            p.Name,
				PayloadPrefix:   p.Channel.PayloadPrefix,
				TimestampPrefix: p.Channel.TimestampPrefix,
				TabParam:        p.Channel.TabParam,
				SigParam:        p.Channel.SigParam,
				RefParam:        p.Channel.RefParam,
			},
			Script: cdpcontrol.SiteScript{
				Name:                p.Name,
				Extractor:           p.Extractor,
				MarkerSelectors:     p.Markers,
				HostSelectors:       p.Anchors,
				ContainerClosest:    p.Container,
				ButtonClass:         p.ButtonClass,
				ButtonLabel:         p.ButtonLabel,
				MinDescriptionChars: p.MinDescription,
				CrossRefParams:      p.CrossRef,
			},
			Matcher: matcher,
		})
	}
	return sites, nil
}

// ComposerScript converts the composer profile.
func ComposerScript(p config.ComposerProfile) cdpcontrol.ComposerScript {
	return cdpcontrol.ComposerScript{Selectors: p.Selectors}
}

// Channels lists the mailbox channels of sites in order.
func Channels(sites []*Site) []handoff.Channel {
	out := make([]handoff.Channel, 0, len(sites))
	for _, s := range sites {
		out = append(out, s.Channel)
	}
	return out
}

// siteFor returns the first site serving rawURL's host. Routes are not
// checked here; a tab on a served host is tracked while it moves between
// eligible and ineligible routes.
func siteFor(sites []*Site, rawURL string) *Site {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	for _, s := range sites {
		if s.Matcher.MatchHost(u.Hostname()) {
			return s
		}
	}
	return nil
}

func isDestinationHost(rule handoff.DestinationRule, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && strings.EqualFold(u.Hostname(), rule.Host)
}
