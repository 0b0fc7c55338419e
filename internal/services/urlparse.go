package services

import (
	"net/url"
	"regexp"
	"strings"

	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

// ParsedURL is the canonical identity the rest of the pipeline keys on.
type ParsedURL struct {
	CanonicalURL string
	VideoID      string
	Platform     videos.Platform
}

// URLParser normalizes the recognized URL shapes of the two supported
// platforms. Anything else is UNSUPPORTED_URL.
type URLParser interface {
	Parse(rawURL string) (*ParsedURL, error)
}

type urlParser struct {
	log *logger.Logger
}

func NewURLParser(log *logger.Logger) URLParser {
	return &urlParser{log: log.With("service", "URLParser")}
}

var (
	youtubeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	vimeoIDRe   = regexp.MustCompile(`^[0-9]+$`)
)

func (p *urlParser) Parse(rawURL string) (*ParsedURL, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, apperrors.E(apperrors.KindUnsupportedURL, "empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedURL, "malformed URL", err)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if id := youtubeVideoID(host, u); id != "" {
		return &ParsedURL{
			CanonicalURL: "https://www.youtube.com/watch?v=" + id,
			VideoID:      id,
			Platform:     videos.PlatformYouTube,
		}, nil
	}
	if id := vimeoVideoID(host, u); id != "" {
		return &ParsedURL{
			CanonicalURL: "https://vimeo.com/" + id,
			VideoID:      id,
			Platform:     videos.PlatformVimeo,
		}, nil
	}

	p.log.Warn("Unrecognized video URL", "url", rawURL)
	return nil, apperrors.Ef(apperrors.KindUnsupportedURL, "no supported platform matches %q", rawURL)
}

// youtubeVideoID extracts the 11-char id from watch, short-link, embed,
// shorts, live and legacy /v/ shapes. Query noise (t=, si=, list=) is
// dropped by construction.
func youtubeVideoID(host string, u *url.URL) string {
	segs := pathSegments(u)

	switch host {
	case "youtu.be":
		if len(segs) >= 1 && youtubeIDRe.MatchString(segs[0]) {
			return segs[0]
		}
		return ""
	case "youtube.com", "m.youtube.com", "music.youtube.com":
	default:
		return ""
	}

	if len(segs) == 0 {
		return ""
	}
	switch segs[0] {
	case "watch":
		if id := u.Query().Get("v"); youtubeIDRe.MatchString(id) {
			return id
		}
	case "embed", "shorts", "live", "v":
		if len(segs) >= 2 && youtubeIDRe.MatchString(segs[1]) {
			return segs[1]
		}
	}
	return ""
}

// vimeoVideoID extracts the numeric id from plain, player, channel and
// group URL shapes.
func vimeoVideoID(host string, u *url.URL) string {
	segs := pathSegments(u)
	switch host {
	case "player.vimeo.com":
		if len(segs) >= 2 && segs[0] == "video" && vimeoIDRe.MatchString(segs[1]) {
			return segs[1]
		}
	case "vimeo.com":
		if len(segs) == 0 {
			return ""
		}
		switch segs[0] {
		case "channels":
			if len(segs) >= 3 && vimeoIDRe.MatchString(segs[2]) {
				return segs[2]
			}
		case "groups":
			if len(segs) >= 4 && segs[2] == "videos" && vimeoIDRe.MatchString(segs[3]) {
				return segs[3]
			}
		case "video":
			if len(segs) >= 2 && vimeoIDRe.MatchString(segs[1]) {
				return segs[1]
			}
		default:
			if vimeoIDRe.MatchString(segs[0]) {
				return segs[0]
			}
		}
	}
	return ""
}

func pathSegments(u *url.URL) []string {
	var segs []string
	for _, s := range strings.Split(u.EscapedPath(), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
