package chapterpipe

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/ebookimport/horosafe"
)

const (
	containerPath  = "META-INF/container.xml"
	opfMediaType   = "application/oebps-package+xml"
	ncxMediaType   = "application/x-dtbncx+xml"
	xhtmlMediaType = "application/xhtml+xml"
)

var errNoSpineContent = errors.New("epub: spine has no readable content")

type epubContainer struct {
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Titles   []string  `xml:"metadata>title"`
	Manifest []opfItem `xml:"manifest>item"`
	Spine    struct {
		TOC      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxDoc struct {
	NavPoints []ncxNavPoint `xml:"navMap>navPoint"`
}

// epubBook gives access to the files of an EPUB archive held in memory.
type epubBook struct {
	files   map[string]*zip.File
	maxSize int64
}

// segmentEPUB produces one chapter per spine entry, in reading order. An
// archive whose structure cannot be read is handled as plain text.
func (p *Pipeline) segmentEPUB(ctx context.Context, data []byte, batch *ChapterBatch) []candidate {
	cands, title, err := p.parseEPUB(ctx, data)
	if err != nil {
		p.logger.Warn("epub structure unreadable, falling back to plain text", "error", err)
		text, fallback := decodeText(data)
		batch.EncodingFallback = fallback
		out := p.segmentText(text, batch)
		batch.Degraded = true
		return out
	}
	batch.Strategy = StrategyEPUB
	batch.Title = title
	return cands
}

func (p *Pipeline) parseEPUB(ctx context.Context, data []byte) ([]candidate, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("epub: open zip: %w", err)
	}
	book := &epubBook{files: make(map[string]*zip.File, len(zr.File)), maxSize: p.cfg.MaxFileSize}
	for _, f := range zr.File {
		book.files[f.Name] = f
	}

	var container epubContainer
	if err := book.decodeXML(containerPath, &container); err != nil {
		return nil, "", err
	}
	opfPath := ""
	for _, rf := range container.RootFiles {
		if opfPath == "" || rf.MediaType == opfMediaType {
			opfPath = rf.FullPath
		}
		if rf.MediaType == opfMediaType {
			break
		}
	}
	if opfPath == "" {
		return nil, "", errors.New("epub: container lists no rootfile")
	}

	var pkg opfPackage
	if err := book.decodeXML(opfPath, &pkg); err != nil {
		return nil, "", err
	}
	base := path.Dir(opfPath)

	manifest := make(map[string]opfItem, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		manifest[item.ID] = item
	}
	toc := book.tableOfContents(&pkg, manifest, base)

	var cands []candidate
	for _, ref := range pkg.Spine.ItemRefs {
		if ctx.Err() != nil {
			break
		}
		item, ok := manifest[ref.IDRef]
		if !ok || !isXHTML(item.MediaType) {
			continue
		}
		href := resolveHref(base, item.Href)
		raw, err := book.read(href)
		if err != nil {
			p.logger.Debug("epub spine entry skipped", "href", href, "error", err)
			continue
		}
		doc, err := parseXHTML(raw)
		if err != nil || strings.TrimSpace(doc.text) == "" {
			continue
		}

		title := toc[href]
		if title == "" {
			title = doc.heading
		}
		if title == "" {
			title = doc.title
		}
		if title == "" {
			title = strings.TrimSuffix(path.Base(href), path.Ext(href))
		}

		cands = append(cands, candidate{
			title:   p.cleanTitle(title),
			content: doc.text,
			html:    p.policy.Sanitize(doc.body),
			source:  href,
		})
	}
	if len(cands) == 0 {
		return nil, "", errNoSpineContent
	}

	title := ""
	if len(pkg.Titles) > 0 {
		title = p.cleanTitle(pkg.Titles[0])
	}
	return cands, title, nil
}

func isXHTML(mediaType string) bool {
	return mediaType == xhtmlMediaType || mediaType == "text/html"
}

// resolveHref resolves a manifest or TOC href against the directory of the
// file that references it. Fragments are dropped.
func resolveHref(base, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	return path.Clean(path.Join(base, href))
}

func (b *epubBook) read(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("epub: %s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := horosafe.LimitedReadAll(rc, b.maxSize)
	if err != nil {
		return nil, fmt.Errorf("epub: read %s: %w", name, err)
	}
	return data, nil
}

func (b *epubBook) decodeXML(name string, v any) error {
	data, err := b.read(name)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("epub: parse %s: %w", name, err)
	}
	return nil
}

// tableOfContents maps content hrefs to their TOC label, from the EPUB 3
// navigation document or, failing that, the EPUB 2 NCX. The first label of a
// file wins.
func (b *epubBook) tableOfContents(pkg *opfPackage, manifest map[string]opfItem, base string) map[string]string {
	toc := make(map[string]string)
	add := func(dir, src, label string) {
		label = strings.TrimSpace(label)
		if src == "" || label == "" {
			return
		}
		href := resolveHref(dir, src)
		if _, seen := toc[href]; !seen {
			toc[href] = label
		}
	}

	for _, item := range pkg.Manifest {
		if !hasProperty(item.Properties, "nav") {
			continue
		}
		navPath := resolveHref(base, item.Href)
		raw, err := b.read(navPath)
		if err != nil {
			break
		}
		if doc, err := html.Parse(bytes.NewReader(raw)); err == nil {
			for _, e := range navEntries(doc) {
				add(path.Dir(navPath), e[0], e[1])
			}
		}
		break
	}
	if len(toc) > 0 {
		return toc
	}

	ncxItem, ok := manifest[pkg.Spine.TOC]
	if !ok {
		for _, item := range pkg.Manifest {
			if item.MediaType == ncxMediaType {
				ncxItem, ok = item, true
				break
			}
		}
	}
	if !ok {
		return toc
	}
	ncxPath := resolveHref(base, ncxItem.Href)
	var ncx ncxDoc
	if err := b.decodeXML(ncxPath, &ncx); err != nil {
		return toc
	}
	var walk func([]ncxNavPoint)
	walk = func(points []ncxNavPoint) {
		for _, np := range points {
			add(path.Dir(ncxPath), np.Content.Src, np.Label)
			walk(np.Children)
		}
	}
	walk(ncx.NavPoints)
	return toc
}

func hasProperty(props, want string) bool {
	for _, p := range strings.Fields(props) {
		if p == want {
			return true
		}
	}
	return false
}

// navEntries returns the [href, label] pairs of the table of contents nav
// (epub:type="toc"), or of the first nav when none is typed.
func navEntries(doc *html.Node) [][2]string {
	var navs []*html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			navs = append(navs, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if len(navs) == 0 {
		return nil
	}
	nav := navs[0]
	for _, n := range navs {
		if strings.Contains(attr(n, "epub:type"), "toc") || strings.Contains(attr(n, "type"), "toc") {
			nav = n
			break
		}
	}

	var out [][2]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			out = append(out, [2]string{attr(n, "href"), collectText(n)})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(nav)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key || (a.Namespace != "" && a.Namespace+":"+a.Key == key) {
			return a.Val
		}
	}
	return ""
}
