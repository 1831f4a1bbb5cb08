package solver

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/abiosoft/readline"
	"github.com/acme-core/acmecore/protocol"
)

// interactive prints provisioning instructions to standard output and
// blocks on standard input for a line before returning, for manual
// challenge provisioning. It uses abiosoft/readline the same way the
// teacher's interactive shell does to read a line, without pulling in the
// rest of a REPL command framework.
type interactive struct {
	challengeType protocol.ChallengeType
	describe      func(identifier, token, keyAuthorization string) string
	out           io.Writer
	readLine      func() (string, error)
}

func newInteractive(ct protocol.ChallengeType, describe func(identifier, token, keyAuthorization string) string) *interactive {
	return &interactive{
		challengeType: ct,
		describe:      describe,
		out:           os.Stdout,
		readLine:      readLineFromStdin,
	}
}

func (i *interactive) Type() protocol.ChallengeType { return i.challengeType }

func (i *interactive) Provision(ctx context.Context, identifier, token, keyAuthorization string) error {
	fmt.Fprintln(i.out, i.describe(identifier, token, keyAuthorization))
	fmt.Fprintln(i.out, "Press Enter once the above has been provisioned...")
	_, err := i.readLine()
	return err
}

func (i *interactive) CleanUp(ctx context.Context, identifier, token, keyAuthorization string) error {
	return nil
}

func readLineFromStdin() (string, error) {
	rl, err := readline.New("")
	if err != nil {
		return "", err
	}
	defer rl.Close()
	return rl.Readline()
}

// PrintHTTP is the interactive HTTP-01 solver: prints the URL and content
// to serve, then waits.
func PrintHTTP() Solver {
	return newInteractive(protocol.ChallengeHTTP01, func(identifier, token, keyAuthorization string) string {
		return fmt.Sprintf("Serve %q with content-type application/octet-stream at:\n  http://%s/%s/%s",
			keyAuthorization, identifier, httpChallengePrefix, token)
	})
}

// PrintDNS is the interactive DNS-01 solver: prints the TXT record name
// and value to create, then waits.
func PrintDNS() Solver {
	return newInteractive(protocol.ChallengeDNS01, func(identifier, token, keyAuthorization string) string {
		return fmt.Sprintf("Create a TXT record:\n  %s = %q",
			DNSRecordName(identifier), DNSRecordValue(keyAuthorization))
	})
}

// PrintALPN is the interactive TLS-ALPN-01 solver: prints the domain and
// acmeIdentifier extension value to serve, then waits.
func PrintALPN() Solver {
	return newInteractive(protocol.ChallengeTLSALPN01, func(identifier, token, keyAuthorization string) string {
		ext, err := AcmeIdentifierExtensionValue(keyAuthorization)
		if err != nil {
			return fmt.Sprintf("failed to compute acmeIdentifier extension: %v", err)
		}
		return fmt.Sprintf("Serve a self-signed certificate for %q over ALPN %q\ncarrying a critical acmeIdentifier extension (OID %s) with DER value:\n  %x",
			identifier, ALPNProtocol, acmeIdentifierOID.String(), ext)
	})
}
