package httpserver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedCert(t *testing.T) {
	cert, err := generateSelfSignedCert([]string{"localhost", "127.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())
	assert.True(t, leaf.NotAfter.After(time.Now().Add(300*24*time.Hour)))
}

func TestTLSListener(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := New(logger, "127.0.0.1:0", "127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	require.Len(t, s.Addrs(), 2)
	conn, err := tls.Dial("tcp", s.Addrs()[1], &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Handshake())
	assert.Equal(t, "Beacon Analytics", conn.ConnectionState().PeerCertificates[0].Subject.Organization[0])
}

func TestStartAndShutdown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	s, err := New(logger, "127.0.0.1:0", "", handler)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	require.Len(t, s.Addrs(), 1)

	resp, err := http.Get("http://" + s.Addrs()[0] + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-s.Errors():
		t.Fatalf("unexpected serve error: %v", err)
	default:
	}
}

func TestStartFailsOnInvalidAddress(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := New(logger, "127.0.0.1:-1", "", http.NotFoundHandler())
	require.NoError(t, err)
	assert.Error(t, s.Start())
}
