package authority

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/domain/epayroll"
)

func submission() epayroll.Submission {
	return epayroll.Submission{
		TenantID:           "t1",
		DocumentID:         "d1",
		UniqueCode:         "ABCDEF0123456789ABCDEF0123456789",
		DocumentNumber:     "NE1",
		Content:            "<Invoice/>",
		Signature:          "c2ln",
		SignatureAlgorithm: epayroll.AlgorithmRSASHA256,
	}
}

func TestClientSubmitSendsDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
		assert.Equal(t, "ABCDEF0123456789ABCDEF0123456789", r.Header.Get("X-Document-Code"))
		assert.Equal(t, "NE1", r.Header.Get("X-Document-Number"))
		assert.Equal(t, "c2ln", r.Header.Get("X-Signature"))
		assert.Equal(t, epayroll.AlgorithmRSASHA256, r.Header.Get("X-Signature-Algorithm"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<Invoice/>", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"accepted","code":"00","message":"Procesado Correctamente"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.True(t, reply.Accepted())
	assert.Equal(t, "00", reply.Code)
	assert.Equal(t, "Procesado Correctamente", reply.Message)
}

func TestClientSubmitNormalizesUnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending","code":"99","message":"queued"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	reply, err := client.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, epayroll.TransmissionStatusRejected, reply.Status)
	assert.Equal(t, "99", reply.Code)
}

func TestClientSubmitMapsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"maintenance window"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	reply, err := client.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, epayroll.TransmissionStatusRejected, reply.Status)
	assert.Equal(t, "HTTP_503", reply.Code)
	assert.Equal(t, "maintenance window", reply.Message)
}

func TestClientSubmitTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(srv.URL, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), submission())
	assert.Error(t, err)
}

func TestClientSubmitRejectsMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), submission())
	assert.ErrorContains(t, err, "decode authority reply")
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(" ", time.Second)
	assert.Error(t, err)
}
