package session

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ignite-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{Certificates: []tls.Certificate{cert}, InsecureSkipVerify: true}
}

// TestTLSHandshakerCompletesOverRawFd drives a real crypto/tls handshake
// and an encrypted round-trip through NewTLSHandshaker's rawConn on one
// end of a non-blocking unix socketpair, with an ordinary blocking
// tls.Client on the other end, confirming the EAGAIN-wrapping translates
// into a correct retry loop rather than either side blocking or erroring.
func TestTLSHandshakerCompletesOverRawFd(t *testing.T) {
	a, b := socketPair(t)
	cfg := selfSignedTLSConfig(t)

	hs := NewTLSHandshaker(a, nil, cfg)
	sess := New(1, a, nil, hs)
	require.Equal(t, Handshaking, sess.State())

	clientFile := os.NewFile(uintptr(b), "")
	rawClient, err := net.FileConn(clientFile)
	require.NoError(t, err)
	clientFile.Close()
	client := tls.Client(rawClient, &tls.Config{InsecureSkipVerify: true})
	defer client.Close()

	clientDone := make(chan error, 1)
	go func() { clientDone <- client.Handshake() }()

	deadline := time.Now().Add(5 * time.Second)
	for sess.State() == Handshaking {
		if time.Now().After(deadline) {
			t.Fatal("handshake did not complete in time")
		}
		err := sess.DoHandshake()
		if err == nil || err == ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		t.Fatalf("server handshake failed: %v", err)
	}
	require.NoError(t, <-clientDone)
	require.Equal(t, Established, sess.State())

	_, err = client.Write([]byte("PING\r\n"))
	require.NoError(t, err)

	deadline = time.Now().Add(5 * time.Second)
	for {
		n, err := sess.Fill()
		require.NoError(t, err)
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("never received application data")
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, "PING\r\n", string(sess.Read.Readable()))

	sess.Write.Write([]byte("PONG\r\n"))
	for sess.Write.Len() > 0 {
		err := sess.Flush()
		require.True(t, err == nil || err == ErrWouldBlock)
	}

	readBuf := make([]byte, 64)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := client.Read(readBuf)
	require.NoError(t, err)
	require.Equal(t, "PONG\r\n", string(readBuf[:n]))
}
