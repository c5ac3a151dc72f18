package youtube

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/subwatch/subwatch"
)

type refKind string

const (
	refChannel refKind = "channel"
	refCustom  refKind = "c"
	refUser    refKind = "user"
	refHandle  refKind = "handle"
)

// channelRef identifies a channel the way the user referred to it; anything
// other than refChannel still needs resolving to a channel ID.
type channelRef struct {
	kind refKind
	name string
}

func (r channelRef) pagePath() string {
	switch r.kind {
	case refHandle:
		return "/@" + r.name
	case refCustom:
		return "/c/" + r.name
	case refUser:
		return "/user/" + r.name
	default:
		return "/channel/" + r.name
	}
}

var channelPathRe = regexp.MustCompile(`^/(channel|c|user)/([^/]+)$`)

// Accepted subscription URL shapes:
//		http(s?)://(www|m).youtube.com/channel/{CHANNEL_ID}
//		http(s?)://(www|m).youtube.com/(c|user)/{NAME}
//		http(s?)://(www|m).youtube.com/@{HANDLE}
//		@{HANDLE}
func parseSubscriptionURL(rawURL string) (channelRef, error) {
	s := strings.TrimSpace(rawURL)
	if strings.HasPrefix(s, "@") {
		name := s[1:]
		if name == "" || strings.ContainsAny(name, " /") {
			return channelRef{}, &subwatch.InvalidURLError{URL: rawURL, Reason: "malformed handle"}
		}
		return channelRef{kind: refHandle, name: name}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return channelRef{}, &subwatch.InvalidURLError{URL: rawURL, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return channelRef{}, &subwatch.InvalidURLError{URL: rawURL, Reason: "not an absolute http(s) URL"}
	}
	switch u.Hostname() {
	case "www.youtube.com", "m.youtube.com", "youtube.com":
	default:
		return channelRef{}, &subwatch.InvalidURLError{URL: rawURL, Reason: "unrecognised hostname"}
	}
	path := strings.TrimSuffix(u.Path, "/")
	if strings.HasPrefix(path, "/@") {
		name := strings.TrimPrefix(path, "/@")
		if name == "" || strings.Contains(name, "/") {
			return channelRef{}, &subwatch.InvalidURLError{URL: rawURL, Reason: "malformed handle"}
		}
		return channelRef{kind: refHandle, name: name}, nil
	}
	if m := channelPathRe.FindStringSubmatch(path); m != nil {
		return channelRef{kind: refKind(m[1]), name: m[2]}, nil
	}
	return channelRef{}, &subwatch.InvalidURLError{URL: rawURL, Reason: "not a channel URL"}
}
