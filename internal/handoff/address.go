package handoff

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// TabIdentity namespaces mailbox keys for one page-load context.
type TabIdentity string

// NewTabIdentity mints a random identity.
func NewTabIdentity() TabIdentity {
	return TabIdentity(uuid.NewString())
}

// Channel describes one producer family's mailbox namespace and the URL
// parameters that carry its address to the destination.
type Channel struct {
	Name            string
	PayloadPrefix   string
	TimestampPrefix string
	TabParam        string
	SigParam        string
	RefParam        string
}

// Address pairs a channel with a tab identity.
type Address struct {
	Channel Channel
	Tab     TabIdentity
}

func (a Address) PayloadKey() string   { return a.Channel.PayloadPrefix + string(a.Tab) }
func (a Address) TimestampKey() string { return a.Channel.TimestampPrefix + string(a.Tab) }

func (a Address) String() string { return a.Channel.Name + ":" + string(a.Tab) }

// AddressFromURL returns the first channel whose tab parameter is present in
// rawURL, along with the signature parameter carried next to it.
func AddressFromURL(rawURL string, channels []Channel) (Address, string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Address{}, "", false
	}
	q := u.Query()
	for _, ch := range channels {
		if ch.TabParam == "" {
			continue
		}
		tab := strings.TrimSpace(q.Get(ch.TabParam))
		if tab == "" {
			continue
		}
		return Address{Channel: ch, Tab: TabIdentity(tab)}, q.Get(ch.SigParam), true
	}
	return Address{}, "", false
}
