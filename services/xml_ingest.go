package services

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// XML namespaces recognised in deposit and gateway documents.
const (
	NSAtom    = "http://www.w3.org/2005/Atom"
	NSSword   = "http://purl.org/net/sword/"
	NSDcterms = "http://purl.org/dc/terms/"
	NSPkp     = "http://pkp.sfu.ca/SWORD"
	NSApp     = "http://www.w3.org/2007/app"
	NSLom     = "http://lockssomatic.info/SWORD2"
)

// Namespaces maps the prefixes usable in queries to their URIs. Queries are
// matched on URI, so documents may bind any prefix (or the default namespace)
// to these URIs.
var Namespaces = map[string]string{
	"atom":    NSAtom,
	"sword":   NSSword,
	"dcterms": NSDcterms,
	"pkp":     NSPkp,
	"app":     NSApp,
	"lom":     NSLom,
}

var compiledQueries sync.Map // string -> *xpath.Expr

// ParsedDocument is a namespace-resolved XML document ready for queries.
type ParsedDocument struct {
	doc  *xmlquery.Node
	root *xmlquery.Node
}

// ParseXML parses a request body. Empty bodies, invalid XML and elements with
// undeclared prefixes fail with ErrMalformedRequest.
func ParseXML(body []byte) (*ParsedDocument, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, newError(ErrMalformedRequest, "Expected request body. Found none.")
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &SwordError{Kind: ErrMalformedRequest, Message: "Cannot parse request XML."}
	}
	root := firstElement(doc)
	if root == nil {
		return nil, newError(ErrMalformedRequest, "Cannot parse request XML.")
	}
	if bad := unresolvedElement(root); bad != nil {
		return nil, newError(ErrMalformedRequest, "Cannot resolve namespace prefix %q.", bad.NamespaceURI)
	}
	return &ParsedDocument{doc: doc, root: root}, nil
}

// Root returns the document element.
func (d *ParsedDocument) Root() *xmlquery.Node {
	return d.root
}

// RootNamespace returns the namespace URI of the document element.
func (d *ParsedDocument) RootNamespace() string {
	return d.root.NamespaceURI
}

// Query returns every node matching expr.
func (d *ParsedDocument) Query(expr string) ([]*xmlquery.Node, error) {
	compiled, err := compileQuery(expr)
	if err != nil {
		return nil, err
	}
	return xmlquery.QuerySelectorAll(d.doc, compiled), nil
}

// Value returns the text of the single node matching expr. No match fails with
// ErrMissingRequiredField; more than one match fails with ErrAmbiguousField.
func (d *ParsedDocument) Value(expr string) (string, error) {
	value, found, err := d.lookup(expr)
	if err != nil {
		return "", err
	}
	if !found {
		return "", newError(ErrMissingRequiredField, "Missing required value for %s.", expr)
	}
	return value, nil
}

// ValueOr behaves like Value but returns def when nothing matches.
func (d *ParsedDocument) ValueOr(expr, def string) (string, error) {
	value, found, err := d.lookup(expr)
	if err != nil {
		return "", err
	}
	if !found {
		return def, nil
	}
	return value, nil
}

func (d *ParsedDocument) lookup(expr string) (string, bool, error) {
	nodes, err := d.Query(expr)
	if err != nil {
		return "", false, err
	}
	switch len(nodes) {
	case 0:
		return "", false, nil
	case 1:
		return strings.TrimSpace(nodes[0].InnerText()), true, nil
	default:
		return "", false, newError(ErrAmbiguousField, "Expected one value for %s, found %d.", expr, len(nodes))
	}
}

func compileQuery(expr string) (*xpath.Expr, error) {
	if cached, ok := compiledQueries.Load(expr); ok {
		return cached.(*xpath.Expr), nil
	}
	compiled, err := xpath.CompileWithNS(expr, Namespaces)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", expr, err)
	}
	compiledQueries.Store(expr, compiled)
	return compiled, nil
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// unresolvedElement finds an element whose prefix was never bound. The
// decoder leaves the bare prefix in place of the URI for those.
func unresolvedElement(n *xmlquery.Node) *xmlquery.Node {
	if n.Type == xmlquery.ElementNode && n.NamespaceURI != "" && !strings.Contains(n.NamespaceURI, ":") {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if bad := unresolvedElement(c); bad != nil {
			return bad
		}
	}
	return nil
}
