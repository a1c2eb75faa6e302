package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/welovename555/smsdesk/internal/types/order"
)

func newTestClient(handler http.HandlerFunc) (*HeroClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return &HeroClient{Client: srv.Client(), BaseURL: srv.URL}, srv
}

func TestGetBalance_PlainText(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getBalance", r.URL.Query().Get("action"))
		assert.Equal(t, "key1", r.URL.Query().Get("api_key"))
		w.Write([]byte("ACCESS_BALANCE:12.50"))
	})
	defer srv.Close()

	balance, err := c.GetBalance(context.Background(), "key1")
	assert.NoError(t, err)
	assert.Equal(t, 12.50, balance)
}

func TestGetBalance_Envelope(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"raw":"ACCESS_BALANCE:0.07"}`))
	})
	defer srv.Close()

	balance, err := c.GetBalance(context.Background(), "key1")
	assert.NoError(t, err)
	assert.Equal(t, 0.07, balance)
}

func TestGetBalance_BadKey(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("BAD_KEY"))
	})
	defer srv.Close()

	_, err := c.GetBalance(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestGetBalance_Garbage(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	})
	defer srv.Close()

	_, err := c.GetBalance(context.Background(), "key1")
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestGetCountries_FiltersInvisible(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":52,"eng":"Thailand","visible":1},{"id":99,"eng":"Hidden","visible":0}]`))
	})
	defer srv.Close()

	countries, err := c.GetCountries(context.Background(), "key1")
	assert.NoError(t, err)
	assert.Len(t, countries, 1)
	assert.Equal(t, "Thailand", countries[0].Name)
}

func TestGetServices_EnvelopeFallback(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"raw":"{\"services\":[{\"code\":\"ka\",\"name\":\"Kakaotalk\"}]}"}`))
	})
	defer srv.Close()

	services, err := c.GetServices(context.Background(), "key1", "52")
	assert.NoError(t, err)
	assert.Len(t, services, 1)
	assert.Equal(t, "ka", services[0].Code)
}

func TestGetPrice_NestedSingleKey(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"52":{"ka":{"cost":"0.50","count":"131"}}}`))
	})
	defer srv.Close()

	price, err := c.GetPrice(context.Background(), "key1", "ka", "52")
	assert.NoError(t, err)
	assert.Equal(t, 0.50, price.Cost)
	assert.Equal(t, 131, price.Count)
}

func TestGetNumber_Success(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getNumberV2", r.URL.Query().Get("action"))
		w.Write([]byte(`{"activationId":123456,"phoneNumber":"+66912345678","activationCost":"0.50","activationOperator":"ais"}`))
	})
	defer srv.Close()

	n, err := c.GetNumber(context.Background(), "key1", "ka", "52")
	assert.NoError(t, err)
	assert.Equal(t, "123456", n.ActivationID)
	assert.Equal(t, "+66912345678", n.PhoneNumber)
	assert.Equal(t, "0.50", n.Cost)
	assert.Equal(t, "ais", n.Operator)
}

func TestGetNumber_AltCostFields(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"activationId":"A1","phoneNumber":"+66","cost":12.5,"operator":"dtac"}`))
	})
	defer srv.Close()

	n, err := c.GetNumber(context.Background(), "key1", "ka", "52")
	assert.NoError(t, err)
	assert.Equal(t, "A1", n.ActivationID)
	assert.Equal(t, "12.5", n.Cost)
	assert.Equal(t, "dtac", n.Operator)
}

func TestGetNumber_Declined(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"raw":"NO_NUMBERS"}`))
	})
	defer srv.Close()

	_, err := c.GetNumber(context.Background(), "key1", "ka", "52")
	var acquireErr *AcquireError
	assert.True(t, errors.As(err, &acquireErr))
	assert.Contains(t, acquireErr.Payload, "NO_NUMBERS")
}

func TestGetStatus_Markers(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status order.OrderStatus
		code   string
	}{
		{"received", "STATUS_OK:837291", order.StatusReceived, "837291"},
		{"waiting", "STATUS_WAIT_CODE", order.StatusWaiting, ""},
		{"cancelled", "STATUS_CANCEL", order.StatusCancelled, ""},
		{"enveloped received", `{"raw":"STATUS_OK:42"}`, order.StatusReceived, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			defer srv.Close()

			res, err := c.GetStatus(context.Background(), "key1", "A1")
			assert.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.code, res.Code)
		})
	}
}

func TestGetStatus_UnknownMarker(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("WHO_KNOWS"))
	})
	defer srv.Close()

	_, err := c.GetStatus(context.Background(), "key1", "A1")
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestSetStatus(t *testing.T) {
	var gotStatus string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("status")
		w.Write([]byte("ACCESS_CANCEL"))
	})
	defer srv.Close()

	err := c.SetStatus(context.Background(), "key1", "A1", SetStatusCancel)
	assert.NoError(t, err)
	assert.Equal(t, "8", gotStatus)
}

func TestSetStatus_Rejected(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("BAD_STATUS"))
	})
	defer srv.Close()

	err := c.SetStatus(context.Background(), "key1", "A1", SetStatusComplete)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}
