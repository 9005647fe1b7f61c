// internal/scrape/scraper_test.go
package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const samplePage = `<!DOCTYPE html>
<html><head>
<title>Fallback Title</title>
<meta property="og:title" content="OG Title">
</head><body>
<nav>skip this nav</nav>
<article>
  <h1>Heading</h1>
  <p>First paragraph.</p>
  <ul><li>item one</li><li>item two</li></ul>
  <script>ignore()</script>
</article>
<footer>skip this footer</footer>
</body></html>`

func TestFetch(t *testing.T) {
	t.Run("ExtractsArticleText", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(samplePage))
		}))
		defer srv.Close()

		s := NewScraper(zaptest.NewLogger(t))
		result, err := s.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)

		assert.Equal(t, "OG Title", result.Title)
		assert.Contains(t, result.Text, "Heading")
		assert.Contains(t, result.Text, "First paragraph.")
		assert.Contains(t, result.Text, "item one")
		assert.NotContains(t, result.Text, "skip this nav")
		assert.NotContains(t, result.Text, "ignore()")
	})

	t.Run("RejectsNonHTML", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"not":"html"}`))
		}))
		defer srv.Close()

		s := NewScraper(zaptest.NewLogger(t))
		_, err := s.Fetch(context.Background(), srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not an HTML page")
	})

	t.Run("RejectsNon200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		s := NewScraper(zaptest.NewLogger(t))
		_, err := s.Fetch(context.Background(), srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("CapsLongText", func(t *testing.T) {
		long := "<html><body><article><p>" + strings.Repeat("가나다라마바사 ", 3000) + "</p></article></body></html>"
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(long))
		}))
		defer srv.Close()

		s := NewScraper(zaptest.NewLogger(t))
		result, err := s.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.LessOrEqual(t, len([]rune(result.Text)), maxReferenceRunes)
	})
}
