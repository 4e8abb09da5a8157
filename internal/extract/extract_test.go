// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-vector/internal/batchfile"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// --- fixtures ---

func articleXML(pmid, title string) string {
	return fmt.Sprintf(`<PubmedArticle>
  <MedlineCitation>
    <PMID Version="1">%s</PMID>
    <Article>
      <Journal>
        <JournalIssue><PubDate><Year>2021</Year></PubDate></JournalIssue>
        <Title>Orphanet Journal of Rare Diseases</Title>
      </Journal>
      <ArticleTitle>%s</ArticleTitle>
      <ELocationID EIdType="pii">S123</ELocationID>
      <ELocationID EIdType="doi">10.1186/%s</ELocationID>
      <Abstract>
        <AbstractText Label="BACKGROUND">First part.</AbstractText>
        <AbstractText/>
        <AbstractText Label="RESULTS">Second part.</AbstractText>
      </Abstract>
      <AuthorList>
        <Author><LastName>Curie</LastName><ForeName>Marie</ForeName></Author>
        <Author><CollectiveName>Rare Disease Consortium</CollectiveName></Author>
        <Author><LastName>Pasteur</LastName><ForeName>Louis</ForeName></Author>
      </AuthorList>
    </Article>
  </MedlineCitation>
</PubmedArticle>`, pmid, title, pmid)
}

const noMedline = `<PubmedArticle><PubmedData/></PubmedArticle>`

const emptyPMID = `<PubmedArticle><MedlineCitation><PMID></PMID><Article><ArticleTitle>x</ArticleTitle></Article></MedlineCitation></PubmedArticle>`

const journalWithoutPubDate = `<PubmedArticle><MedlineCitation><PMID>77</PMID><Article>
  <Journal><Title>J</Title></Journal><ArticleTitle>x</ArticleTitle>
</Article></MedlineCitation></PubmedArticle>`

func articleSet(articles ...string) string {
	return `<?xml version="1.0" ?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2024//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_240101.dtd">
<PubmedArticleSet>
` + strings.Join(articles, "\n") + `
</PubmedArticleSet>`
}

func collect(t *testing.T, doc string) ([]types.Record, *Decoder, error) {
	t.Helper()
	d := NewDecoder(strings.NewReader(doc), WithBatch("test"))
	var recs []types.Record
	for {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			return recs, d, nil
		}
		if err != nil {
			return recs, d, err
		}
		recs = append(recs, rec)
	}
}

// --- decoder ---

func TestDecoderFieldRules(t *testing.T) {
	recs, _, err := collect(t, articleSet(articleXML("101", "Gene therapy")))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, "101", r.ID)
	assert.Equal(t, "Gene therapy", r.Title)
	assert.Equal(t, "First part. Second part.", r.Abstract)
	assert.Equal(t, "Marie Curie, Louis Pasteur", r.Authors)
	assert.Equal(t, "10.1186/101", r.DOI)
	assert.Equal(t, "Orphanet Journal of Rare Diseases", r.Journal)
	assert.Equal(t, "2021", r.Year)
	assert.Equal(t, types.SourcePubMed, r.Source)
	assert.Empty(t, r.Embedding)
}

func TestDecoderSkipsMalformedArticles(t *testing.T) {
	doc := articleSet(
		articleXML("1", "one"),
		noMedline,
		articleXML("2", "two"),
		emptyPMID,
		journalWithoutPubDate,
		articleXML("3", "three"),
	)
	recs, d, err := collect(t, doc)
	require.NoError(t, err)

	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	bad := d.Malformed()
	require.Len(t, bad, 3)
	assert.Equal(t, 1, bad[0].ArticleIndex)
	assert.Equal(t, 3, bad[1].ArticleIndex)
	assert.Equal(t, 4, bad[2].ArticleIndex)
	assert.Equal(t, "77", bad[2].ID)
	assert.False(t, bad[2].BatchScope())
}

func TestDecoderTitleWithInlineMarkup(t *testing.T) {
	a := strings.Replace(articleXML("5", "PLACEHOLDER"), "PLACEHOLDER",
		"Role of <i>SMN1</i> in type<sup>2</sup> SMA", 1)
	recs, _, err := collect(t, articleSet(a))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Role of SMN1 in type2 SMA", recs[0].Title)
}

func TestDecoderDOIFallsBackToArticleIdList(t *testing.T) {
	doc := articleSet(`<PubmedArticle>
  <MedlineCitation><PMID>9</PMID><Article>
    <Journal><JournalIssue><PubDate><Year>2019</Year></PubDate></JournalIssue></Journal>
    <ArticleTitle>t</ArticleTitle>
  </Article></MedlineCitation>
  <PubmedData><ArticleIdList>
    <ArticleId IdType="pubmed">9</ArticleId>
    <ArticleId IdType="doi">10.1000/fallback</ArticleId>
  </ArticleIdList></PubmedData>
</PubmedArticle>`)
	recs, _, err := collect(t, doc)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "10.1000/fallback", recs[0].DOI)
}

func TestDecoderYearFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		journal string
		extra   string
		want    string
	}{
		{
			name:    "medline date",
			journal: `<Journal><JournalIssue><PubDate><MedlineDate>1998 Dec-1999 Jan</MedlineDate></PubDate></JournalIssue></Journal>`,
			want:    "1998",
		},
		{
			name:    "article date",
			journal: `<Journal><JournalIssue><PubDate><Season>Spring</Season></PubDate></JournalIssue></Journal>`,
			extra:   `<ArticleDate DateType="Electronic"><Year>2020</Year></ArticleDate>`,
			want:    "2020",
		},
		{
			name:    "no journal",
			journal: "",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := articleSet(fmt.Sprintf(`<PubmedArticle><MedlineCitation><PMID>4</PMID><Article>%s<ArticleTitle>t</ArticleTitle>%s</Article></MedlineCitation></PubmedArticle>`,
				tt.journal, tt.extra))
			recs, _, err := collect(t, doc)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Year)
		})
	}
}

func TestDecoderTruncatedDocumentKeepsPrefix(t *testing.T) {
	doc := articleSet(articleXML("1", "one"), articleXML("2", "two"), articleXML("3", "three"))
	cut := strings.Index(doc, `<PMID Version="1">3</PMID>`) + 10
	recs, _, err := collect(t, doc[:cut])

	require.Len(t, recs, 2)
	var xe *ExtractionError
	require.True(t, errors.As(err, &xe), "want ExtractionError, got %v", err)
	assert.True(t, xe.BatchScope())
	assert.Equal(t, "test", xe.Batch)
}

func TestDecoderErrorIsSticky(t *testing.T) {
	d := NewDecoder(strings.NewReader("<PubmedArticleSet><PubmedArticle>"))
	_, err1 := d.Next()
	_, err2 := d.Next()
	require.Error(t, err1)
	assert.Same(t, err1, err2)
}

func TestRecordsSequence(t *testing.T) {
	doc := articleSet(articleXML("1", "a"), articleXML("2", "b"), articleXML("3", "c"))

	var ids []string
	for rec, err := range Records(strings.NewReader(doc)) {
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		if len(ids) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestRecordsYieldsBatchErrorLast(t *testing.T) {
	doc := articleSet(articleXML("1", "a")) + "<trailing"
	var n int
	var last error
	for _, err := range Records(strings.NewReader(doc)) {
		n++
		last = err
	}
	assert.Equal(t, 2, n)
	assert.Error(t, last)
}

// --- batch processing ---

func writeBatch(t *testing.T, dir, name, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
}

func TestExtractAll(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	writeBatch(t, in, "batch_00001.xml", articleSet(articleXML("1", "a"), noMedline, articleXML("2", "b")))
	writeBatch(t, in, "batch_00002.xml", articleSet(noMedline, emptyPMID))
	truncated := articleSet(articleXML("3", "c"), articleXML("4", "d"))
	writeBatch(t, in, "batch_00003.xml", truncated[:strings.Index(truncated, `<PMID Version="1">4`)])
	writeBatch(t, in, "batch_00004.xml", articleSet(articleXML("5", "e")))
	require.NoError(t, batchfile.WriteRecords(filepath.Join(out, "batch_00004.json"), nil))

	var buf strings.Builder
	cfg := types.ExtractConfig{InputDir: in, OutputDir: out}
	summary, err := ExtractAll(context.Background(), cfg, nil, nil, &buf)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Extracted, buf.String())
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Total())
	assert.True(t, summary.HasFailures())
	assert.Equal(t, 1, summary.Malformed)

	recs, err := batchfile.ReadRecords(filepath.Join(out, "batch_00001.json"))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	assert.False(t, batchfile.Exists(filepath.Join(out, "batch_00002.json")), "zero-record batch must not write output")

	partial, err := batchfile.ReadRecords(filepath.Join(out, "batch_00003.json"))
	require.NoError(t, err)
	assert.Len(t, partial, 1)
	assert.Equal(t, "3", partial[0].ID)

	assert.Contains(t, buf.String(), "skipped batch_00004")
	assert.Contains(t, buf.String(), "failed  batch_00002")
	assert.Contains(t, buf.String(), "partial batch_00003")
}

func TestExtractAllSecondRunSkipsEverything(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeBatch(t, in, "a.xml", articleSet(articleXML("1", "a")))
	cfg := types.ExtractConfig{InputDir: in, OutputDir: out}

	first, err := ExtractAll(context.Background(), cfg, nil, nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Extracted)

	second, err := ExtractAll(context.Background(), cfg, nil, nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Extracted)
	assert.Equal(t, 1, second.Skipped)
}

func TestExtractAllMissingInputDir(t *testing.T) {
	cfg := types.ExtractConfig{InputDir: filepath.Join(t.TempDir(), "missing"), OutputDir: t.TempDir()}
	_, err := ExtractAll(context.Background(), cfg, nil, nil, io.Discard)
	assert.Error(t, err)
}
