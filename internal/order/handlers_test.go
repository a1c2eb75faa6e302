package order

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welovename555/smsdesk/internal/logger"
	"github.com/welovename555/smsdesk/internal/middleware"
	"github.com/welovename555/smsdesk/internal/provider"
)

// Стрим поднимается через ту же цепочку обёрток, что и в боевом роутере:
// логирование + gzip не должны съедать http.Flusher.
func TestStreamEventsThroughMiddlewareChain(t *testing.T) {
	p := &mockProvider{
		getNumberFn: func(service, country string) (*provider.Number, error) { return defaultNumber(), nil },
		getStatusFn: waiting,
	}
	h := &mockHistory{}
	m := newTestManager(p, h, nil, time.Hour)
	handler := NewHandler(m, validator.New())

	srv := httptest.NewServer(logger.WithLogging(middleware.GzipHandler(http.HandlerFunc(handler.StreamEvents))))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// событие рожаем только после того, как подписка установлена
	require.Eventually(t, func() bool {
		m.events.mutex.Lock()
		defer m.events.mutex.Unlock()
		return len(m.events.channels) > 0
	}, time.Second, time.Millisecond)

	_, err = m.Purchase(context.Background(), "ka", "52", "Kakaotalk", "Thailand")
	require.NoError(t, err)
	require.NoError(t, m.Cancel(context.Background(), "A1"))

	frames := make(chan string, 1)
	go func() {
		r := bufio.NewReader(resp.Body)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data:") {
				frames <- line
				return
			}
		}
	}()

	select {
	case frame := <-frames:
		assert.Contains(t, frame, `"cancelled"`)
		assert.Contains(t, frame, `"A1"`)
	case <-time.After(time.Second):
		t.Fatal("no event frame arrived over the stream")
	}
}
