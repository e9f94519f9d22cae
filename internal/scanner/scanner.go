package scanner

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/keithlinneman/secretmark/internal/codec"
	"github.com/keithlinneman/secretmark/internal/log"
)

const (
	ProcessedAttr  = "data-obfuscated-processed"
	processedValue = "true"

	// SecretClass is set on every emitted span.
	SecretClass = "secret-message"

	secretStyle = "background: #ffe; border: 1px dashed #999; padding: 0 4px; border-radius: 4px;"
)

// Result counts what one Scan did.
type Result struct {
	Containers   int
	Processed    int
	Skipped      int
	Replacements int
}

// Scanner is stateless apart from its configuration and safe for
// concurrent use on distinct trees.
type Scanner struct {
	codec   *codec.Codec
	key     string
	classes []string
	logger  log.Logger
	metrics ScanMetrics
}

func New(opts Options) (*Scanner, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Scanner{
		codec:   opts.Codec,
		key:     opts.Key,
		classes: slices.Clone(opts.ContainerClasses),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Key returns the key markers are encoded with.
func (s *Scanner) Key() string { return s.key }

// Scan rewrites every unprocessed container under root. It always
// completes; ctx only carries the trace.
func (s *Scanner) Scan(ctx context.Context, root *html.Node) Result {
	start := time.Now()
	ctx, span := otel.Tracer("secretmark/scanner").Start(ctx, "scanner.scan")
	defer span.End()

	var res Result
	for _, c := range s.Containers(root) {
		res.Containers++
		if IsProcessed(c) {
			res.Skipped++
			continue
		}
		markProcessed(c)
		res.Processed++
		res.Replacements += s.rewrite(c)
	}

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("scanner.containers", res.Containers),
		attribute.Int("scanner.processed", res.Processed),
		attribute.Int("scanner.skipped", res.Skipped),
		attribute.Int("scanner.replacements", res.Replacements),
	)
	if s.metrics != nil {
		s.metrics.ObserveScan(elapsed, res.Processed, res.Skipped, res.Replacements)
	}
	if res.Processed > 0 {
		s.logger.Debug(ctx, "secret scan",
			"containers", res.Containers,
			"processed", res.Processed,
			"replacements", res.Replacements,
			"duration", elapsed.String(),
		)
	}
	return res
}

// Containers returns the container elements under root in document order.
func (s *Scanner) Containers(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && s.isContainer(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func (s *Scanner) isContainer(n *html.Node) bool {
	for _, cls := range s.classes {
		if hasClass(n, cls) {
			return true
		}
	}
	return false
}

// IsProcessed reports whether a container already carries the processed marker.
func IsProcessed(n *html.Node) bool {
	v, ok := attr(n, ProcessedAttr)
	return ok && v == processedValue
}

func markProcessed(n *html.Node) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == ProcessedAttr {
			n.Attr[i].Val = processedValue
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: ProcessedAttr, Val: processedValue})
}

// rewrite replaces markers in the text nodes c owns and returns how many
// it replaced. Nested containers own their own text.
func (s *Scanner) rewrite(c *html.Node) int {
	var texts []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			switch ch.Type {
			case html.TextNode:
				texts = append(texts, ch)
			case html.ElementNode:
				if skipElement(ch) || s.isContainer(ch) {
					continue
				}
				walk(ch)
			}
		}
	}
	walk(c)

	n := 0
	for _, t := range texts {
		n += s.replaceText(t)
	}
	return n
}

// skipElement reports elements whose text is never rewritten.
func skipElement(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Textarea:
		return true
	}
	return hasClass(n, SecretClass)
}

// replaceText splits t around its markers, inserting a span per marker.
func (s *Scanner) replaceText(t *html.Node) int {
	text := t.Data
	markers := FindMarkers(text)
	if len(markers) == 0 {
		return 0
	}

	parent := t.Parent
	pos := 0
	for _, m := range markers {
		if m.Start > pos {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[pos:m.Start]}, t)
		}
		parent.InsertBefore(s.secretSpan(m.Message), t)
		pos = m.End
	}
	if pos < len(text) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[pos:]}, t)
	}
	parent.RemoveChild(t)
	return len(markers)
}

func (s *Scanner) secretSpan(msg string) *html.Node {
	token := s.codec.Encode(msg, s.key)
	revealed := s.codec.Decode(token, s.key)

	span := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
		Attr: []html.Attribute{
			{Key: "class", Val: SecretClass},
			{Key: "title", Val: token},
			{Key: "style", Val: secretStyle},
		},
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: revealed})
	return span
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	return slices.Contains(strings.Fields(v), class)
}
