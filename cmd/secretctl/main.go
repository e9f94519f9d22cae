// Command secretctl encodes and decodes secret tokens and rewrites markers
// in HTML read from stdin.
//
//	secretctl encode [-key K] TEXT...
//	secretctl decode [-key K] [-fallback-keys a,b] [-no-fallback] TOKEN
//	secretctl scan [-key K] [-classes cooked,excerpt] < in.html > out.html
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/keithlinneman/secretmark/internal/cfg"
	"github.com/keithlinneman/secretmark/internal/codec"
	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/scanner"
	v "github.com/keithlinneman/secretmark/internal/version"
)

// maxInput caps what scan and encode read from stdin.
const maxInput = 16 << 20

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "encode":
		err = cmdEncode(args[1:], stdin, stdout, stderr)
	case "decode":
		err = cmdDecode(args[1:], stdout, stderr)
	case "scan":
		err = cmdScan(ctx, args[1:], stdin, stdout, stderr)
	case "version", "-V":
		fmt.Fprintln(stdout, "secretctl", v.Get().String())
	case "help", "-h", "-help", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintln(stderr, "secretctl:", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage:
  secretctl encode [-key K] TEXT...        (reads stdin when TEXT is omitted)
  secretctl decode [-key K] [-fallback-keys a,b] [-no-fallback] TOKEN
  secretctl scan [-key K] [-classes cooked,excerpt] [-v] < in.html > out.html
  secretctl version
`)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parse reports flag errors as usage errors; the flag set already printed them.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

func cmdEncode(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("encode", stderr)
	key := fs.String("key", codec.DefaultKey, "obfuscation key")
	if err := parse(fs, args); err != nil {
		return err
	}

	text := strings.Join(fs.Args(), " ")
	if fs.NArg() == 0 {
		b, err := io.ReadAll(io.LimitReader(stdin, maxInput))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimRight(string(b), "\r\n")
	}
	fmt.Fprintln(stdout, codec.Encode(text, *key))
	return nil
}

// cmdDecode prints the placeholder when no key recovers the token, the same
// as every other decode path.
func cmdDecode(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("decode", stderr)
	key := fs.String("key", codec.DefaultKey, "key tried first")
	fallbacks := fs.String("fallback-keys", "", "comma separated keys tried after the default key")
	noFallback := fs.Bool("no-fallback", false, "try only -key")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "decode takes exactly one TOKEN")
		return errUsage
	}

	c := codec.New(codec.WithFallbackKeys(cfg.SplitList(*fallbacks)...))
	fmt.Fprintln(stdout, c.DecodeFallback(fs.Arg(0), *key, *noFallback))
	return nil
}

func cmdScan(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("scan", stderr)
	key := fs.String("key", codec.DefaultKey, "key used to encode every marker")
	classes := fs.String("classes", strings.Join(scanner.DefaultContainerClasses, ","), "comma separated container classes")
	verbose := fs.Bool("v", false, "log scan results to stderr")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "scan reads HTML from stdin and takes no arguments")
		return errUsage
	}

	L := log.Nop()
	if *verbose {
		lg, err := log.New(log.Options{App: "secretctl", Level: slog.LevelDebug, Writer: stderr})
		if err != nil {
			return err
		}
		L = lg
	}

	sc, err := scanner.New(scanner.Options{
		Codec:            codec.New(codec.WithDefaultKey(*key)),
		ContainerClasses: cfg.SplitList(*classes),
		Logger:           L,
	})
	if err != nil {
		return err
	}

	doc, err := html.Parse(io.LimitReader(stdin, maxInput))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	res := sc.Scan(ctx, doc)
	L.Info(ctx, "scan complete",
		"containers", res.Containers,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"replacements", res.Replacements,
	)
	if err := html.Render(stdout, doc); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
