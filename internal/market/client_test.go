package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/welovename555/smsdesk/internal/types/market"
)

func newTestShop(handler http.HandlerFunc) (*ShopClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return &ShopClient{Client: srv.Client(), BaseURL: srv.URL}, srv
}

func TestGetCatalog_Wrapped(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "mk1", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"categories":[{"id":"1","name":"Mail","products":[{"id":"43200","name":"Hotmail","price":"500","amount":10}]}]}`))
	})
	defer srv.Close()

	cats, err := c.GetCatalog(context.Background(), "mk1")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Hotmail", cats[0].Products[0].Name)
}

func TestGetCatalog_BareArray(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"1","name":"Mail","products":[]}]`))
	})
	defer srv.Close()

	cats, err := c.GetCatalog(context.Background(), "mk1")
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestGetProfile_Nested(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","data":{"username":"alice","money":125000,"email":"a@b.c"}}`))
	})
	defer srv.Close()

	p, err := c.GetProfile(context.Background(), "mk1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "125000", p.Balance)
	assert.Equal(t, "a@b.c", p.Email)
}

func TestGetProfile_Flat(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username":"bob","balance":"99"}`))
	})
	defer srv.Close()

	p, err := c.GetProfile(context.Background(), "mk1")
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Username)
	assert.Equal(t, "99", p.Balance)
}

func TestGetProfile_Error(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","msg":"invalid key"}`))
	})
	defer srv.Close()

	_, err := c.GetProfile(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrMarketRejected)
}

func TestBuy_ArrayData(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/buy", r.URL.Path)
		w.Write([]byte(`{"status":"ok","trans_id":"T99","data":["a@b.c|pass1","d@e.f|pass2"]}`))
	})
	defer srv.Close()

	res, err := c.Buy(context.Background(), "mk1", "43200", 2)
	require.NoError(t, err)
	assert.Equal(t, "T99", res.TransID)
	assert.Equal(t, []string{"a@b.c|pass1", "d@e.f|pass2"}, res.Lines)
}

func TestBuy_StringData(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","trans_id":"T1","data":"a@b.c:p1\nd@e.f:p2\n"}`))
	})
	defer srv.Close()

	res, err := c.Buy(context.Background(), "mk1", "43200", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.c:p1", "d@e.f:p2"}, res.Lines)
}

func TestBuy_Declined(t *testing.T) {
	c, srv := newTestShop(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","msg":"out of stock"}`))
	})
	defer srv.Close()

	_, err := c.Buy(context.Background(), "mk1", "43200", 1)
	assert.ErrorIs(t, err, ErrMarketRejected)
	assert.Contains(t, err.Error(), "out of stock")
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []market.Credential
	}{
		{
			name:  "pipe separated",
			lines: []string{"a@b.c|secret"},
			want:  []market.Credential{{Email: "a@b.c", Password: "secret"}},
		},
		{
			name:  "colon separated",
			lines: []string{"a@b.c:secret"},
			want:  []market.Credential{{Email: "a@b.c", Password: "secret"}},
		},
		{
			name:  "tab separated",
			lines: []string{"a@b.c\tsecret"},
			want:  []market.Credential{{Email: "a@b.c", Password: "secret"}},
		},
		{
			name:  "no separator kept raw",
			lines: []string{"just-a-license-key"},
			want:  []market.Credential{{Email: "just-a-license-key"}},
		},
		{
			name:  "separator but no email kept raw",
			lines: []string{"something:else"},
			want:  []market.Credential{{Email: "something:else"}},
		},
		{
			name:  "blank lines skipped",
			lines: []string{"", "  ", "a@b.c|p"},
			want:  []market.Credential{{Email: "a@b.c", Password: "p"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCredentials(tt.lines))
		})
	}
}
