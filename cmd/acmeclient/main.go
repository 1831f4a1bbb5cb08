// acmeclient is a thin demonstration binary wiring the acmecore client
// library together: it loads a caller-supplied RSA account key and CSR
// from disk, drives Initialise and SignCertificate with the HTTP-01
// solver, and writes the resulting certificate chain to disk. It replaces
// the teacher's interactive shell one-for-one in scope: one command, no
// REPL, no account switching.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/acme-core/acmecore/client"
	"github.com/acme-core/acmecore/cmd"
	"github.com/acme-core/acmecore/solver"
)

const (
	directoryDefault = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

func main() {
	directory := flag.String("directory", directoryDefault, "Directory URL for the ACME server")
	email := flag.String("contact", "", "Optional contact email for account creation")
	keyPath := flag.String("key", "", "Path to a PEM-encoded RSA account private key")
	csrPath := flag.String("csr", "", "Path to a DER-encoded PKCS#10 certificate signing request")
	outPath := flag.String("out", "cert.pem", "Path to write the resulting PEM certificate chain")
	httpPort := flag.Int("httpPort", 80, "Port to serve the HTTP-01 challenge response on")
	flag.Parse()

	if *keyPath == "" || *csrPath == "" {
		cmd.FailOnError(fmt.Errorf("both -key and -csr are required"), "invalid arguments")
	}

	key, err := loadRSAKey(*keyPath)
	cmd.FailOnError(err, "loading account key")

	csr, err := os.ReadFile(*csrPath)
	cmd.FailOnError(err, "reading CSR")

	ctx, cancel := context.WithCancel(context.Background())
	go cmd.CatchSignals(cancel)

	c, err := client.Initialise(ctx, *directory, *email, key, client.Config{})
	cmd.FailOnError(err, "initialising client")

	httpSolver := solver.NewHTTPSolver(nil, nil)
	go func() {
		addr := fmt.Sprintf(":%d", *httpPort)
		if err := http.ListenAndServe(addr, httpSolver.Handler()); err != nil {
			fmt.Fprintf(os.Stderr, "http-01 challenge listener exited: %v\n", err)
		}
	}()

	certs, err := c.SignCertificate(ctx, []solver.Solver{httpSolver}, nil, csr)
	cmd.FailOnError(err, "signing certificate")

	f, err := os.Create(*outPath)
	cmd.FailOnError(err, "creating output file")
	defer f.Close()

	for _, cert := range certs {
		block := &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}
		if err := pem.Encode(f, block); err != nil {
			cmd.FailOnError(err, "writing certificate chain")
		}
	}

	fmt.Printf("wrote %d certificate(s) to %s\n", len(certs), *outPath)
}

func loadRSAKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %q", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}
