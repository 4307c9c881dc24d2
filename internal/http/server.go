// Package httpserver runs the plain HTTP listener and, when configured, a
// second TLS listener with a self-signed certificate.
package httpserver

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
)

func generateSelfSignedCert(hosts []string) (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Beacon Analytics"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: derBytes,
	})
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	return tls.X509KeyPair(certPEM, keyPEM)
}

type Servers struct {
	logger  *logrus.Logger
	servers []*http.Server
	addrs   []string
	wg      sync.WaitGroup
	errs    chan error
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// New prepares the listeners. tlsAddr may be empty to serve plain HTTP only.
func New(logger *logrus.Logger, addr, tlsAddr string, handler http.Handler) (*Servers, error) {
	s := &Servers{
		logger:  logger,
		servers: []*http.Server{newServer(addr, handler)},
		errs:    make(chan error, 2),
	}

	if tlsAddr != "" {
		cert, err := generateSelfSignedCert([]string{"localhost", "127.0.0.1"})
		if err != nil {
			return nil, err
		}
		httpsServer := newServer(tlsAddr, handler)
		httpsServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		s.servers = append(s.servers, httpsServer)
	}
	return s, nil
}

// Start binds every listener before returning, then serves in the
// background. Serve failures are reported on Errors.
func (s *Servers) Start() error {
	listeners := make([]net.Listener, 0, len(s.servers))
	for _, srv := range s.servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return err
		}
		listeners = append(listeners, ln)
	}
	for _, ln := range listeners {
		s.addrs = append(s.addrs, ln.Addr().String())
	}

	for i, srv := range s.servers {
		srv, ln := srv, listeners[i]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			var err error
			if srv.TLSConfig != nil {
				s.logger.WithField("addr", ln.Addr().String()).Info("Starting HTTPS server")
				err = srv.ServeTLS(ln, "", "")
			} else {
				s.logger.WithField("addr", ln.Addr().String()).Info("Starting HTTP server")
				err = srv.Serve(ln)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.errs <- err
			}
		}()
	}
	return nil
}

// Addrs lists the bound listener addresses, plain HTTP first.
func (s *Servers) Addrs() []string {
	return s.addrs
}

func (s *Servers) Errors() <-chan error {
	return s.errs
}

// Shutdown drains every listener, waiting at most until ctx is done.
func (s *Servers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}
