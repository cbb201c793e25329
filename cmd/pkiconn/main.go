package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/pkiconn"
	"github.com/kardianos/pkiconn/certdec"
	"github.com/kardianos/pkiconn/docstore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	mode := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var err error
	switch mode {
	case "fetch":
		err = runFetchMode(ctx, args)
	case "fingerprint":
		err = runFingerprintMode(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", mode)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: pkiconn <mode> [options]

Modes:
  fetch         Fetch a document over certificate-pinned TLS
  fingerprint   Print a certificate's summary and fingerprint

Run 'pkiconn <mode> -h' for mode-specific options.
`)
}

type fetchOptions struct {
	ServerCertPath string
	ClientP12Path  string
	ClientP12Pass  string
	ClientCertPath string
	ClientKeyPath  string
	Entity         string
	Timeout        int
	CachePath      string
	Verbose        bool
}

func runFetchMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	opts := &fetchOptions{}
	fs.StringVar(&opts.ServerCertPath, "server-cert", "", "Pinned server certificate (PEM, DER, or PKCS7)")
	fs.StringVar(&opts.ClientP12Path, "client-p12", "", "Client credentials as a PKCS#12 bundle")
	fs.StringVar(&opts.ClientP12Pass, "p12-pass", "", "Password of the PKCS#12 bundle")
	fs.StringVar(&opts.ClientCertPath, "client-cert", "", "Client certificate chain (PEM or DER)")
	fs.StringVar(&opts.ClientKeyPath, "client-key", "", "Client private key (PEM or DER)")
	fs.StringVar(&opts.Entity, "entity", "pkiconn", "Entity identifier used as key alias")
	fs.IntVar(&opts.Timeout, "timeout", 30, "Connect and receive timeout in seconds")
	fs.StringVar(&opts.CachePath, "cache", "", "Optional document cache file")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("fetch needs exactly one URL argument")
	}
	if opts.ServerCertPath == "" {
		return fmt.Errorf("-server-cert is required")
	}
	return runFetch(ctx, opts, fs.Arg(0))
}

func runFetch(ctx context.Context, opts *fetchOptions, uri string) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	serverData, err := os.ReadFile(opts.ServerCertPath)
	if err != nil {
		return err
	}
	serverCert, err := certdec.Certificate(serverData)
	if err != nil {
		return err
	}

	connOpt := pkiconn.ConnectorOpt{
		Timeout:    opts.Timeout,
		ServerCert: serverCert,
		EntityID:   opts.Entity,
		Logger:     logger,
	}

	if opts.CachePath != "" {
		docs, err := docstore.Open(opts.CachePath)
		if err != nil {
			return err
		}
		defer docs.Close()
		connOpt.Docs = docs
	}

	switch {
	case opts.ClientP12Path != "":
		p12, err := os.ReadFile(opts.ClientP12Path)
		if err != nil {
			return err
		}
		store, err := pkiconn.NewCredentialStoreFromPKCS12(p12, opts.ClientP12Pass, opts.Entity)
		if err != nil {
			return err
		}
		connOpt.Store = store
	case opts.ClientCertPath != "" && opts.ClientKeyPath != "":
		certData, err := os.ReadFile(opts.ClientCertPath)
		if err != nil {
			return err
		}
		chain, err := certdec.Certificates(certData)
		if err != nil {
			return err
		}
		keyData, err := os.ReadFile(opts.ClientKeyPath)
		if err != nil {
			return err
		}
		key, err := certdec.PrivateKey(keyData)
		if err != nil {
			return err
		}
		connOpt.ClientKey = key
		connOpt.ClientChain = chain
	}

	conn, err := pkiconn.NewConnector(connOpt)
	if err != nil {
		return err
	}

	body, err := conn.FetchDocument(ctx, uri)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(body)
	return err
}

func runFingerprintMode(args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("fingerprint needs exactly one certificate file argument")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	cert, err := certdec.Certificate(data)
	if err != nil {
		return err
	}
	fmt.Println(pkiconn.CertificateSummary(cert))
	return nil
}
