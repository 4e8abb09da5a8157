// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// ExtractionError reports a failure while reading a batch. Article-scope
// errors describe one malformed article that was skipped; batch-scope errors
// (ArticleIndex < 0) mean the document could not be read past that point.
type ExtractionError struct {
	Batch        string
	ArticleIndex int
	ID           string
	Err          error
}

func (e *ExtractionError) Error() string {
	if e.BatchScope() {
		return fmt.Sprintf("batch %s: %v", e.Batch, e.Err)
	}
	if e.ID != "" {
		return fmt.Sprintf("batch %s: article %d (id %s): %v", e.Batch, e.ArticleIndex, e.ID, e.Err)
	}
	return fmt.Sprintf("batch %s: article %d: %v", e.Batch, e.ArticleIndex, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// BatchScope reports whether the error ended the whole batch.
func (e *ExtractionError) BatchScope() bool { return e.ArticleIndex < 0 }

// Option configures a Decoder.
type Option func(*Decoder)

// WithBatch names the batch in errors and log lines.
func WithBatch(name string) Option {
	return func(d *Decoder) { d.batch = name }
}

// WithLogger sets the logger for skipped articles.
func WithLogger(log *zap.Logger) Option {
	return func(d *Decoder) {
		if log != nil {
			d.log = log
		}
	}
}

// Decoder reads PubmedArticle elements one at a time from a PubmedArticleSet
// document. Only the article being decoded is held in memory.
type Decoder struct {
	dec       *xml.Decoder
	batch     string
	log       *zap.Logger
	index     int
	malformed []*ExtractionError
	err       error
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	dec := xml.NewDecoder(r)
	dec.Entity = xml.HTMLEntity
	d := &Decoder{dec: dec, batch: "-", log: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next well-formed record in document order. Malformed
// articles are skipped and recorded. At the end of the document Next returns
// io.EOF. If the document is truncated or not well-formed, Next returns a
// batch-scope *ExtractionError; records returned before it remain valid.
// Once Next has returned an error it keeps returning it.
func (d *Decoder) Next() (types.Record, error) {
	for d.err == nil {
		tok, err := d.dec.Token()
		if err == io.EOF {
			d.err = io.EOF
			break
		}
		if err != nil {
			d.err = &ExtractionError{Batch: d.batch, ArticleIndex: -1, Err: err}
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "PubmedArticle" {
			continue
		}

		idx := d.index
		d.index++

		var a pubmedArticle
		if err := d.dec.DecodeElement(&a, &start); err != nil {
			d.err = &ExtractionError{Batch: d.batch, ArticleIndex: -1, Err: fmt.Errorf("article %d: %w", idx, err)}
			break
		}

		rec, err := a.record()
		if err != nil {
			xe := &ExtractionError{Batch: d.batch, ArticleIndex: idx, ID: rec.ID, Err: err}
			d.malformed = append(d.malformed, xe)
			d.log.Warn("skipping malformed article",
				zap.String("batch", d.batch),
				zap.Int("article", idx),
				zap.String("id", rec.ID),
				zap.Error(err))
			continue
		}
		return rec, nil
	}
	return types.Record{}, d.err
}

// Malformed returns the article-scope errors for articles skipped so far.
func (d *Decoder) Malformed() []*ExtractionError {
	return d.malformed
}

// Records returns a lazy sequence over the records in r. A batch-scope
// error is yielded once, as the final element, with a zero record.
func Records(r io.Reader, opts ...Option) iter.Seq2[types.Record, error] {
	return func(yield func(types.Record, error) bool) {
		d := NewDecoder(r, opts...)
		for {
			rec, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(types.Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// textContent collects all character data inside an element, including
// text nested in inline markup such as <i>, <sup> or <b>.
type textContent string

func (t *textContent) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.CharData:
			b.Write(v)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	*t = textContent(strings.TrimSpace(b.String()))
	return nil
}

func (t textContent) String() string { return string(t) }

type pubmedArticle struct {
	MedlineCitation *medlineCitation `xml:"MedlineCitation"`
	PubmedData      *pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID    textContent `xml:"PMID"`
	Article *article    `xml:"Article"`
}

type article struct {
	Journal      *journal      `xml:"Journal"`
	ArticleTitle textContent   `xml:"ArticleTitle"`
	Abstract     *abstract     `xml:"Abstract"`
	AuthorList   []author      `xml:"AuthorList>Author"`
	ELocationIDs []typedID     `xml:"ELocationID"`
	ArticleDates []articleDate `xml:"ArticleDate"`
}

type journal struct {
	Title        textContent   `xml:"Title"`
	JournalIssue *journalIssue `xml:"JournalIssue"`
}

type journalIssue struct {
	PubDate *pubDate `xml:"PubDate"`
}

type pubDate struct {
	Year        string `xml:"Year"`
	MedlineDate string `xml:"MedlineDate"`
}

type articleDate struct {
	Year string `xml:"Year"`
}

type abstract struct {
	Texts []textContent `xml:"AbstractText"`
}

type author struct {
	ForeName textContent `xml:"ForeName"`
	LastName textContent `xml:"LastName"`
}

// typedID is an ELocationID or ArticleId; only one of the type attributes
// is present on any element.
type typedID struct {
	EIdType string `xml:"EIdType,attr"`
	IdType  string `xml:"IdType,attr"`
	Value   string `xml:",chardata"`
}

type pubmedData struct {
	ArticleIDs []typedID `xml:"ArticleIdList>ArticleId"`
}

var yearToken = regexp.MustCompile(`\d{4}`)

// record maps a decoded article to a Record. The returned record carries the
// PMID even on error so the caller can log it.
func (a *pubmedArticle) record() (types.Record, error) {
	mc := a.MedlineCitation
	if mc == nil {
		return types.Record{}, errors.New("missing MedlineCitation")
	}
	rec := types.Record{ID: mc.PMID.String(), Source: types.SourcePubMed}
	art := mc.Article
	if art == nil {
		return rec, errors.New("missing Article")
	}
	if rec.ID == "" {
		return rec, errors.New("empty PMID")
	}
	if art.Journal != nil && (art.Journal.JournalIssue == nil || art.Journal.JournalIssue.PubDate == nil) {
		return rec, errors.New("journal without JournalIssue/PubDate")
	}

	rec.Title = art.ArticleTitle.String()
	rec.Abstract = art.abstractText()
	rec.Authors = art.authors()
	rec.DOI = a.doi()
	if art.Journal != nil {
		rec.Journal = art.Journal.Title.String()
	}
	rec.Year = art.year()
	return rec, nil
}

func (art *article) abstractText() string {
	if art.Abstract == nil {
		return ""
	}
	parts := make([]string, 0, len(art.Abstract.Texts))
	for _, t := range art.Abstract.Texts {
		if t != "" {
			parts = append(parts, t.String())
		}
	}
	return strings.Join(parts, " ")
}

func (art *article) authors() string {
	names := make([]string, 0, len(art.AuthorList))
	for _, au := range art.AuthorList {
		if au.ForeName == "" || au.LastName == "" {
			continue
		}
		names = append(names, au.ForeName.String()+" "+au.LastName.String())
	}
	return strings.Join(names, ", ")
}

func (a *pubmedArticle) doi() string {
	for _, e := range a.MedlineCitation.Article.ELocationIDs {
		if v := strings.TrimSpace(e.Value); e.EIdType == "doi" && v != "" {
			return v
		}
	}
	if a.PubmedData != nil {
		for _, id := range a.PubmedData.ArticleIDs {
			if v := strings.TrimSpace(id.Value); id.IdType == "doi" && v != "" {
				return v
			}
		}
	}
	return ""
}

// year prefers PubDate/Year, then the first four-digit token of
// PubDate/MedlineDate ("1998 Dec-1999 Jan"), then ArticleDate/Year.
func (art *article) year() string {
	if art.Journal != nil {
		pd := art.Journal.JournalIssue.PubDate
		if y := strings.TrimSpace(pd.Year); y != "" {
			return y
		}
		if y := yearToken.FindString(pd.MedlineDate); y != "" {
			return y
		}
	}
	for _, ad := range art.ArticleDates {
		if y := strings.TrimSpace(ad.Year); y != "" {
			return y
		}
	}
	return ""
}
