package resolver

import (
	"errors"
	"strings"
	"testing"

	"homecontrol/models"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "netflix title page",
			in:   "https://www.netflix.com/title/81040344",
			want: "http://www.netflix.com/watch/81040344",
		},
		{
			name: "netflix watch page",
			in:   "https://netflix.com/watch/81040344",
			want: "http://www.netflix.com/watch/81040344",
		},
		{
			name: "netflix scheme",
			in:   "netflix://title/81040344",
			want: "http://www.netflix.com/watch/81040344",
		},
		{
			name: "hbomax movie urn",
			in:   "https://www.hbomax.com/movie/urn:hbo:movie:11111111-2222-3333-4444-555555555555",
			want: "https://play.max.com/movie/11111111-2222-3333-4444-555555555555",
		},
		{
			name: "hbomax series urn",
			in:   "https://hbomax.com/series/urn:hbo:series:11111111-2222-3333-4444-555555555555",
			want: "https://play.max.com/show/11111111-2222-3333-4444-555555555555",
		},
		{
			name: "hbomax movie slug",
			in:   "https://www.hbomax.com/movies/dune/11111111-2222-3333-4444-555555555555",
			want: "https://play.max.com/movie/11111111-2222-3333-4444-555555555555",
		},
		{
			name: "apple tv locale and slug",
			in:   "https://tv.apple.com/us/show/severance/umc.cmc.1srk2goyh2q2zdxcx605w8vtx",
			want: "https://tv.apple.com/show/umc.cmc.1srk2goyh2q2zdxcx605w8vtx",
		},
		{
			name: "foreign url untouched",
			in:   "https://example.com/watch/42",
			want: "https://example.com/watch/42",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeURL(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
			// Canonical forms are fixed points.
			if again := NormalizeURL(got); again != got {
				t.Fatalf("normalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestLookupAliases(t *testing.T) {
	cases := map[string]string{
		"Netflix":  "netflix",
		"NETFLIX":  "netflix",
		"yt":       "youtube",
		"HBO Max":  "max",
		"hbo":      "max",
		"Apple TV": "appletv",
		"disney+":  "disney",
		"Disney +": "disney",
	}
	for in, want := range cases {
		a, ok := Lookup(in)
		if !ok {
			t.Errorf("Lookup(%q): not found", in)
			continue
		}
		if a.Key != want {
			t.Errorf("Lookup(%q) = %s, want %s", in, a.Key, want)
		}
	}
	if _, ok := Lookup("vimeo"); ok {
		t.Error("Lookup(vimeo) unexpectedly found")
	}
}

func TestResolveDirectURL(t *testing.T) {
	intent, err := Resolve("netflix", "https://www.netflix.com/title/80057281")
	if err != nil {
		t.Fatal(err)
	}
	if intent.URI != "http://www.netflix.com/watch/80057281" {
		t.Errorf("URI = %q", intent.URI)
	}
	if !intent.DeepLink || !intent.NeedsSelect {
		t.Errorf("DeepLink=%v NeedsSelect=%v, want both true", intent.DeepLink, intent.NeedsSelect)
	}
}

func TestResolveURLDetectsApp(t *testing.T) {
	intent, err := Resolve("", "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if intent.App != "youtube" {
		t.Errorf("App = %q, want youtube", intent.App)
	}
	if !intent.DeepLink {
		t.Error("expected a deep link for an owned URL")
	}
}

func TestResolveQueryUsesSearchTemplate(t *testing.T) {
	intent, err := Resolve("netflix", "stranger things")
	if err != nil {
		t.Fatal(err)
	}
	want := "http://www.netflix.com/search?q=stranger+things"
	if intent.URI != want {
		t.Errorf("URI = %q, want %q", intent.URI, want)
	}
	if !intent.NeedsSelect {
		t.Error("search results should require a select")
	}
}

func TestResolveForeignURLFallsBackToSearch(t *testing.T) {
	intent, err := Resolve("netflix", "https://example.com/some-review")
	if err != nil {
		t.Fatal(err)
	}
	if !intent.DeepLink {
		t.Fatal("expected search deep link")
	}
	if intent.App != "netflix" {
		t.Errorf("App = %q", intent.App)
	}
}

func TestResolveUnknownAppGenericLaunch(t *testing.T) {
	intent, err := Resolve("Some Random App", "whatever")
	if err != nil {
		t.Fatal(err)
	}
	if intent.DeepLink {
		t.Error("unknown app should not deep-link")
	}
	if intent.App != "some random app" {
		t.Errorf("App = %q", intent.App)
	}
}

func TestResolveNothingToWorkFrom(t *testing.T) {
	_, err := Resolve("", "just words")
	if err == nil {
		t.Fatal("expected resolution error")
	}
	if models.KindOf(err) != models.ErrKindResolution {
		t.Errorf("kind = %s, want resolution", models.KindOf(err))
	}
	var oe *models.OpError
	if !errors.As(err, &oe) {
		t.Error("expected *models.OpError")
	}
}

func TestMatchPackage(t *testing.T) {
	installed := []string{
		"com.amazon.firetv.youtube",
		"com.netflix.ninja",
		"com.wbd.stream",
	}

	nf, _ := Lookup("netflix")
	if got := nf.MatchPackage(installed); got != "com.netflix.ninja" {
		t.Errorf("netflix package = %q", got)
	}
	max, _ := Lookup("max")
	if got := max.MatchPackage(installed); got != "com.wbd.stream" {
		t.Errorf("max package = %q", got)
	}
	dis, _ := Lookup("disney")
	if got := dis.MatchPackage(installed); got != "" {
		t.Errorf("disney package = %q, want empty", got)
	}
}

func TestFireTVYouTubeComponent(t *testing.T) {
	yt, _ := Lookup("youtube")
	if got := yt.Component("com.amazon.firetv.youtube"); got != "com.amazon.firetv.youtube/dev.cobalt.app.MainActivity" {
		t.Errorf("component = %q", got)
	}
	if got := yt.Component("com.google.android.youtube.tv"); got != "" {
		t.Errorf("component for stock build = %q, want empty", got)
	}
}

func TestStreamingPackageFilter(t *testing.T) {
	if !IsStreamingPackage("com.netflix.ninja") {
		t.Error("netflix should count as streaming")
	}
	if IsStreamingPackage("com.android.settings") {
		t.Error("settings should not count as streaming")
	}
}

func TestEntryMetadata(t *testing.T) {
	e := Entry("com.netflix.ninja")
	if e.Name != "Netflix" || e.Color == "" {
		t.Errorf("entry = %+v", e)
	}
	if !strings.Contains(e.Icon, "simpleicons.org/netflix") {
		t.Errorf("icon = %q, want the brand logo reference", e.Icon)
	}
	e = Entry("com.example.unknownapp")
	if e.Name != "Unknownapp" {
		t.Errorf("derived name = %q", e.Name)
	}
	if e.Icon != "" || e.Color != "" {
		t.Errorf("unknown app should carry no brand metadata, got %+v", e)
	}
}
