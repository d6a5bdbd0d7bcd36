package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, inbound string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var captured string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		captured = Value(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	r.ServeHTTP(w, req)
	return w, captured
}

func TestGeneratesIDWhenMissing(t *testing.T) {
	w, captured := serve(t, "")
	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, w.Header().Get(Header))
}

func TestKeepsWellFormedInboundID(t *testing.T) {
	_, captured := serve(t, "upstream-42")
	assert.Equal(t, "upstream-42", captured)
}

func TestReplacesMalformedInboundID(t *testing.T) {
	w, captured := serve(t, "bad id\r\nwith junk")
	assert.NotEqual(t, "bad id\r\nwith junk", captured)
	assert.NotEmpty(t, w.Header().Get(Header))

	_, captured = serve(t, strings.Repeat("a", 200))
	assert.Len(t, captured, 36)
}
