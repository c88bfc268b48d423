// Package resolver maps (app, content query or URL) pairs onto the launch
// intents Android TV devices understand. It is pure: no device state, no
// network, just the per-app deep-link grammar.
//
// Each app carries a small strategy: direct URLs of a known host/scheme pass
// through verbatim, shared links get rewritten into the form the app's TV
// client accepts, and free-text queries go through a search URI template.
// Adding an app is a table entry.
package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"homecontrol/models"
)

// App describes one supported streaming app and its deep-link grammar.
type App struct {
	Key             string
	DisplayName     string
	Aliases         []string
	PackagePatterns []string // substrings matched against installed package ids
	Hosts           []string // URL hosts this app's deep links use
	Schemes         []string // custom URI schemes (netflix://...)
	SearchTemplate  string   // search URI with one %s for the escaped query
	Rewrites        []RewriteRule
	// NeedsSelect marks apps whose deep links land on a details page and
	// need a select press before playback starts.
	NeedsSelect bool
	// LaunchFlags are extra `am start` arguments (Netflix wants a clean
	// task, for example).
	LaunchFlags []string
	// Component returns an explicit activity component for the installed
	// package when the device would otherwise intercept the intent, or ""
	// when implicit VIEW dispatch works.
	Component func(pkg string) string
	Color     string
	// Icon is a brand logo reference for inventory UIs.
	Icon string
}

// RewriteRule normalizes one shared-link shape into the app's canonical
// deep-link form. Replacement takes the first capture group.
type RewriteRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

var apps = []*App{
	{
		Key:             "netflix",
		DisplayName:     "Netflix",
		Aliases:         []string{"netflix"},
		PackagePatterns: []string{"netflix"},
		Hosts:           []string{"netflix.com", "www.netflix.com"},
		Schemes:         []string{"netflix"},
		SearchTemplate:  "http://www.netflix.com/search?q=%s",
		Rewrites: []RewriteRule{
			// title/watch pages and netflix:// links all collapse to the
			// /watch form, the most reliable on TV clients.
			{
				Pattern:     regexp.MustCompile(`^(?:netflix://|https?://(?:www\.)?netflix\.com/)(?:title|watch)/(\d+)`),
				Replacement: "http://www.netflix.com/watch/%s",
			},
		},
		NeedsSelect: true,
		LaunchFlags: []string{"--activity-clear-task"},
		Color:       "#E50914",
		Icon:        "https://cdn.simpleicons.org/netflix/E50914",
	},
	{
		Key:             "youtube",
		DisplayName:     "YouTube",
		Aliases:         []string{"youtube", "yt"},
		PackagePatterns: []string{"youtube"},
		Hosts:           []string{"youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be"},
		Schemes:         []string{"vnd.youtube"},
		SearchTemplate:  "https://www.youtube.com/results?search_query=%s",
		// Fire TV's YouTube build ignores implicit VIEW intents; it needs
		// the Cobalt activity spelled out.
		Component: func(pkg string) string {
			if strings.Contains(pkg, "amazon") || strings.Contains(pkg, "firetv") {
				return pkg + "/dev.cobalt.app.MainActivity"
			}
			return ""
		},
		Color: "#FF0000",
		Icon:  "https://cdn.simpleicons.org/youtube/FF0000",
	},
	{
		Key:             "max",
		DisplayName:     "HBO Max",
		Aliases:         []string{"max", "hbomax", "hbo max", "hbo"},
		PackagePatterns: []string{"hbo", "wbd.stream"},
		Hosts:           []string{"play.max.com", "hbomax.com", "www.hbomax.com"},
		SearchTemplate:  "https://play.max.com/search?q=%s",
		Rewrites: []RewriteRule{
			// Only the play.max.com domain deep-links on TV; the website's
			// hbomax.com URLs need their UUID lifted out.
			{
				Pattern:     regexp.MustCompile(`^https?://(?:www\.)?hbomax\.com/movies?/urn:hbo:movie:([a-f0-9-]{36})`),
				Replacement: "https://play.max.com/movie/%s",
			},
			{
				Pattern:     regexp.MustCompile(`^https?://(?:www\.)?hbomax\.com/series/urn:hbo:series:([a-f0-9-]{36})`),
				Replacement: "https://play.max.com/show/%s",
			},
			{
				Pattern:     regexp.MustCompile(`^https?://(?:www\.)?hbomax\.com/movies?/[^/]+/([a-f0-9-]{36})`),
				Replacement: "https://play.max.com/movie/%s",
			},
			{
				Pattern:     regexp.MustCompile(`^https?://(?:www\.)?hbomax\.com/series/[^/]+/([a-f0-9-]{36})`),
				Replacement: "https://play.max.com/show/%s",
			},
		},
		NeedsSelect: true,
		Color:       "#002BE7",
		Icon:        "https://cdn.simpleicons.org/hbo/ffffff",
	},
	{
		Key:             "appletv",
		DisplayName:     "Apple TV+",
		Aliases:         []string{"appletv", "apple tv", "apple tv+", "apple"},
		PackagePatterns: []string{"appletv"},
		Hosts:           []string{"tv.apple.com"},
		Rewrites: []RewriteRule{
			// Strip locale and slug so the show resolves inside the app
			// instead of bouncing to a browser chooser.
			{
				Pattern:     regexp.MustCompile(`^https?://tv\.apple\.com/(?:[a-z]{2}/)?show/[^/]+/(umc\.cmc\.[A-Za-z0-9.]+)`),
				Replacement: "https://tv.apple.com/show/%s",
			},
			{
				Pattern:     regexp.MustCompile(`^https?://tv\.apple\.com/(?:[a-z]{2}/)?show/(umc\.cmc\.[A-Za-z0-9.]+)`),
				Replacement: "https://tv.apple.com/show/%s",
			},
		},
		NeedsSelect: true,
		// Forcing the component avoids the Amazon "Open with" intercept on
		// Fire TV.
		Component: func(pkg string) string { return pkg + "/.MainActivity" },
		Color:     "#000000",
		Icon:      "https://cdn.simpleicons.org/appletv/ffffff",
	},
	{
		Key:             "prime",
		DisplayName:     "Prime Video",
		Aliases:         []string{"prime", "prime video", "primevideo", "amazon video"},
		PackagePatterns: []string{"amazonvideo", "avod", "prime"},
		Hosts:           []string{"primevideo.com", "www.primevideo.com", "app.primevideo.com"},
		NeedsSelect:     true,
		Color:           "#00A8E1",
		Icon:            "https://cdn.simpleicons.org/primevideo/00A8E1",
	},
	{
		Key:             "disney",
		DisplayName:     "Disney+",
		Aliases:         []string{"disney", "disney+", "disneyplus"},
		PackagePatterns: []string{"disney"},
		Hosts:           []string{"disneyplus.com", "www.disneyplus.com"},
		NeedsSelect:     true,
		Color:           "#01147C",
		Icon:            "https://cdn.simpleicons.org/disneyplus/113CCF",
	},
}

var byAlias = func() map[string]*App {
	m := make(map[string]*App)
	for _, a := range apps {
		m[a.Key] = a
		for _, alias := range a.Aliases {
			m[alias] = a
		}
	}
	return m
}()

// Lookup finds an app spec by canonical key or alias. Matching is case- and
// spacing-insensitive.
func Lookup(name string) (*App, bool) {
	a, ok := byAlias[canonicalName(name)]
	if ok {
		return a, true
	}
	// "disney +", "apple  tv" and similar still resolve once spacing and
	// punctuation collapse.
	a, ok = byAlias[strings.ReplaceAll(canonicalName(name), " ", "")]
	return a, ok
}

func canonicalName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// Apps returns the full table, for inventory display metadata.
func Apps() []*App {
	return apps
}

// Resolve maps an app name (or alias) plus a content query or URL onto a
// launch intent. Unknown apps degrade to a generic launch with DeepLink
// false; malformed or foreign URLs degrade to a search query. It only fails
// when there is no app name and no recognizable URL to work from.
func Resolve(appName, queryOrURL string) (models.LaunchIntent, error) {
	input := strings.TrimSpace(queryOrURL)
	app, known := Lookup(appName)

	if isURL(input) {
		norm := NormalizeURL(input)
		if !known {
			app, known = DetectByURL(norm)
		}
		if known && app.ownsURL(norm) {
			return models.LaunchIntent{
				App:         app.Key,
				URI:         norm,
				DeepLink:    true,
				NeedsSelect: app.NeedsSelect,
			}, nil
		}
		// URL for some other service, or one this app's client cannot
		// open. Treat it as a plain search query rather than erroring.
		return resolveQuery(appName, app, known, input)
	}

	return resolveQuery(appName, app, known, input)
}

func resolveQuery(appName string, app *App, known bool, query string) (models.LaunchIntent, error) {
	if !known {
		if strings.TrimSpace(appName) == "" {
			return models.LaunchIntent{}, models.NewOpError(models.ErrKindResolution, "", "",
				fmt.Errorf("no app and no recognizable URL in %q", query))
		}
		// Unrecognized app: open it by name lookup on the device, no deep
		// content.
		return models.LaunchIntent{
			App:      canonicalName(appName),
			Query:    query,
			DeepLink: false,
		}, nil
	}

	if app.SearchTemplate != "" && query != "" {
		return models.LaunchIntent{
			App:         app.Key,
			URI:         fmt.Sprintf(app.SearchTemplate, url.QueryEscape(query)),
			Query:       query,
			DeepLink:    true,
			NeedsSelect: true, // search results always need a pick
		}, nil
	}

	return models.LaunchIntent{
		App:      app.Key,
		Query:    query,
		DeepLink: false,
	}, nil
}

// NormalizeURL applies every app's rewrite rules, first match wins. Already
// canonical URLs come back unchanged, so normalizing twice is a no-op.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, a := range apps {
		for _, rule := range a.Rewrites {
			if m := rule.Pattern.FindStringSubmatch(raw); m != nil {
				return fmt.Sprintf(rule.Replacement, m[1])
			}
		}
	}
	return raw
}

// DetectByURL identifies which app owns a URL by host or scheme.
func DetectByURL(raw string) (*App, bool) {
	for _, a := range apps {
		if a.ownsURL(raw) {
			return a, true
		}
	}
	return nil, false
}

func (a *App) ownsURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, scheme := range a.Schemes {
		if u.Scheme == scheme {
			return true
		}
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range a.Hosts {
		if host == h {
			return true
		}
	}
	return false
}

// MatchPackage returns the first installed package belonging to this app,
// or "" when it is not installed.
func (a *App) MatchPackage(packages []string) string {
	for _, pattern := range a.PackagePatterns {
		for _, pkg := range packages {
			if strings.Contains(strings.ToLower(pkg), pattern) {
				return pkg
			}
		}
	}
	return ""
}

func isURL(s string) bool {
	if !strings.Contains(s, "://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme != ""
}

// StreamingKeywords filters a device package inventory down to media apps.
var StreamingKeywords = []string{
	"youtube", "netflix", "prime", "amazonvideo", "hulu", "disney", "hbo",
	"wbd.stream", "peacock", "paramount", "apple.tv", "appletv", "plex",
	"kodi", "spotify", "pandora", "tidal", "twitch", "crunchyroll",
}

// IsStreamingPackage reports whether a package id looks like a media app.
func IsStreamingPackage(pkg string) bool {
	p := strings.ToLower(pkg)
	for _, kw := range StreamingKeywords {
		if strings.Contains(p, kw) {
			return true
		}
	}
	return false
}

// AppForPackage finds the table entry owning an installed package id.
func AppForPackage(pkg string) (*App, bool) {
	p := strings.ToLower(pkg)
	for _, a := range apps {
		for _, pattern := range a.PackagePatterns {
			if strings.Contains(p, pattern) {
				return a, true
			}
		}
	}
	return nil, false
}

// Entry builds the inventory record for an installed package, using table
// metadata when the app is known and a derived name otherwise.
func Entry(pkg string) models.AppEntry {
	if a, ok := AppForPackage(pkg); ok {
		return models.AppEntry{Package: pkg, Name: a.DisplayName, Icon: a.Icon, Color: a.Color}
	}
	parts := strings.Split(pkg, ".")
	name := parts[len(parts)-1]
	if name == "" {
		name = pkg
	}
	return models.AppEntry{Package: pkg, Name: capitalize(name)}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
