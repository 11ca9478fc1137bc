package authctx

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// tail matches the rest of a URL after the host: optional port, then
// nothing or a path/query/fragment.
const tail = `(:\d+)?([/?#].*)?`

// logoutPaths are path segments whose requests end the captured session.
var logoutPaths = []string{
	"logout", "log-out", "log_out",
	"signout", "sign-out", "sign_out",
	"logoff", "log-off", "signoff", "sign-off",
}

// thirdPartyDomains are analytics, CDN and social hosts commonly embedded in
// target pages. Crawling them wastes budget and leaves scope.
var thirdPartyDomains = []string{
	"googleapis.com",
	"gstatic.com",
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"googlesyndication.com",
	"facebook.com",
	"facebook.net",
	"twitter.com",
	"linkedin.com",
	"youtube.com",
	"cloudflare.com",
	"cloudfront.net",
	"akamaihd.net",
	"jsdelivr.net",
	"unpkg.com",
	"bootstrapcdn.com",
	"jquery.com",
	"fontawesome.com",
	"hotjar.com",
	"segment.io",
	"sentry.io",
	"newrelic.com",
	"nr-data.net",
	"stripe.com",
	"intercom.io",
}

// binaryExtensions are file types the scanners cannot usefully attack.
var binaryExtensions = []string{
	// video / audio
	"mp4", "avi", "mov", "wmv", "flv", "webm", "mkv", "mp3", "wav",
	// archives
	"zip", "rar", "7z", "tar", "gz", "tgz", "bz2", "xz",
	// installers
	"exe", "msi", "dmg", "pkg", "deb", "rpm", "apk", "iso",
	// documents
	"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
	// fonts
	"woff", "woff2", "ttf", "otf", "eot",
}

// IncludePatterns returns the context include regexes for target: the exact
// host plus its registrable domain and every subdomain of it. IP literals and
// single-label hosts (localhost) only include themselves.
func IncludePatterns(target *url.URL) []string {
	host := strings.ToLower(target.Hostname())
	exact := `https?://` + regexp.QuoteMeta(host) + tail

	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return []string{exact}
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return []string{exact}
	}
	wild := `https?://([^/?#]+\.)?` + regexp.QuoteMeta(domain) + tail
	if domain == host {
		return []string{wild}
	}
	return []string{exact, wild}
}

// ExcludePatterns returns the context exclude regexes: logout endpoints,
// third-party domains (minus any that cover the target itself) and binary
// file extensions.
func ExcludePatterns(target *url.URL) []string {
	host := strings.ToLower(target.Hostname())
	patterns := []string{
		`(?i).*/(` + strings.Join(quoteAll(logoutPaths), "|") + `)([/?#.].*)?`,
	}
	for _, d := range thirdPartyDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			continue
		}
		patterns = append(patterns, `(?i)https?://([^/?#]+\.)?`+regexp.QuoteMeta(d)+tail)
	}
	patterns = append(patterns, `(?i).*\.(`+strings.Join(binaryExtensions, "|")+`)([?#].*)?`)
	return patterns
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = regexp.QuoteMeta(s)
	}
	return out
}
