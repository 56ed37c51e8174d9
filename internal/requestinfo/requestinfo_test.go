package requestinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "junk, 203.0.113.7, 10.0.0.1"}, "1.1.1.1:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-Ip": "198.51.100.2"}, "1.1.1.1:80", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.9:5555", "192.0.2.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r).String(); got != tc.want {
				t.Fatalf("ClientIP = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEnrich_AttachesInfo(t *testing.T) {
	var got *RequestInfo
	h := Enrich(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/admin/forms/x", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	r.Header.Set("Accept-Language", "fr-CA;q=0.9, en")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got == nil {
		t.Fatal("no RequestInfo in context")
	}
	if !got.UA.IsBot {
		t.Error("Googlebot not flagged as bot")
	}
	if got.UA.PrimaryLang != "fr-ca" {
		t.Errorf("PrimaryLang = %q", got.UA.PrimaryLang)
	}
}
