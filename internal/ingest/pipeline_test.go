package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestPipeline(t *testing.T, dialect string, opts ...Option) *Pipeline {
	t.Helper()
	d, ok := LookupDialect(dialect)
	require.True(t, ok, "dialect %s not registered", dialect)
	return New(d, append([]Option{WithLogger(quietLogger)}, opts...)...)
}

func TestIngest_MinimalCSV(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)

	res, err := p.Ingest(context.Background(), "name,description\n\"小樱\",\"魔卡少女樱主角\"")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "小樱", rec.Name)
	assert.Equal(t, "魔卡少女樱主角", rec.Description)
	assert.Equal(t, []string{DefaultTag}, rec.Tags)
	assert.Equal(t, TypeOther, rec.Type)
	assert.False(t, rec.IsOfficial)
	assert.Equal(t, CategoryCommunity, rec.Category)
	assert.Equal(t, ReviewPending, rec.ReviewStatus)
	assert.Contains(t, DefaultImages, rec.ImageURL)
	assert.NotEmpty(t, rec.ID)

	r := res.Report
	assert.Equal(t, 2, r.TotalRows)
	assert.Equal(t, 1, r.HeaderRows)
	assert.Equal(t, 1, r.Accepted)
	assert.Equal(t, 0, r.Skipped())
	assert.InDelta(t, 1.0, r.SuccessRate(), 1e-9)
	assert.Equal(t, "comma", r.Delimiter)
	assert.Equal(t, []string{"name", "description"}, r.Header)
}

func TestIngest_SynthesizedHeader(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)

	input := "列1,列2\n小樱,描述,开朗,提示,魔法,动漫,作品,CLAMP,http://x/a.png,true"
	res, err := p.Ingest(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "小樱", rec.Name)
	assert.Equal(t, "描述", rec.Description)
	assert.Equal(t, "开朗", rec.Personality)
	assert.Equal(t, "提示", rec.Prompt)
	assert.Equal(t, []string{"魔法"}, rec.Tags)
	assert.Equal(t, TypeAnime, rec.Type)
	assert.Equal(t, "作品", rec.Source)
	assert.Equal(t, "CLAMP", rec.Creator)
	assert.Equal(t, "http://x/a.png", rec.ImageURL)
	assert.True(t, rec.IsOfficial)

	assert.True(t, res.Report.HeaderSynthesized)
	assert.Equal(t, CanonicalOrder, res.Report.Header)
}

func TestIngest_LocalizedTabSeparated(t *testing.T) {
	p := newTestPipeline(t, DialectFeishu)

	res, err := p.Ingest(context.Background(), "角色名\t角色描述\t标签\n小樱\t魔卡少女樱主角\t魔法，可爱")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"魔法", "可爱"}, res.Records[0].Tags)
	assert.Equal(t, "tab", res.Report.Delimiter)
}

func TestIngest_SemicolonStandardized(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)

	res, err := p.Ingest(context.Background(), "name;description\nA;B\nC;D")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "semicolon", res.Report.Delimiter)
	assert.Equal(t, "D", res.Records[1].Description)
}

func TestIngest_FieldCountReconciliation(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)

	res, err := p.Ingest(context.Background(), "name,description,tags\nA,d1,t1\nB,d2\nC,d3,t3,extra")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	assert.Equal(t, "A", res.Records[0].Name)
	assert.Equal(t, "C", res.Records[1].Name)
	assert.Equal(t, []string{"t3"}, res.Records[1].Tags, "extra field dropped")

	r := res.Report
	assert.Equal(t, 1, r.FieldCountMismatch)
	require.Len(t, r.Skips, 1)
	assert.Equal(t, RowSkip{
		Row:     2,
		Line:    3,
		Reason:  SkipFieldCountMismatch,
		Detail:  "expected 3 fields, got 2",
		Preview: "B,d2",
	}, r.Skips[0])
}

func TestIngest_SkipReasons(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)

	input := "name,description\nA,x\n,only desc\n,\nB,y"
	res, err := p.Ingest(context.Background(), input)
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 2, r.Accepted)
	assert.Equal(t, 1, r.MissingName)
	assert.Equal(t, 1, r.EmptyLine)
	assert.Equal(t, 5, r.TotalRows)
	assert.Equal(t, r.DataRows(), r.Accepted+r.Skipped())
}

func TestIngest_MultilineQuotedField(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)

	res, err := p.Ingest(context.Background(), "name,prompt\n\"A\",\"line1\nline2\"\n\"B\",\"x\"")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "line1\nline2", res.Records[0].Prompt)
	assert.Equal(t, 3, res.Report.TotalRows)
}

func TestIngest_Failures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "", wantErr: ErrEmptyInput},
		{name: "whitespace", input: "  \n\r\n ", wantErr: ErrEmptyInput},
		{name: "header only", input: "name,description", wantErr: ErrTooFewRows},
		{name: "header only with blank lines", input: "name,description\n\n\n", wantErr: ErrTooFewRows},
		{name: "every row rejected", input: "name,description\n,x\n,y", wantErr: ErrNoRecordsParsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestPipeline(t, DialectCSV).Ingest(context.Background(), tt.input)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotEmpty(t, Remediation(err))
		})
	}
}

func TestIngest_UnterminatedQuote(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)

	_, err := p.Ingest(context.Background(), "name,description\n\"A,B")
	require.ErrorIs(t, err, ErrNoRecordsParsed)

	var f *Failure
	require.ErrorAs(t, err, &f)
	require.NotNil(t, f.Report)
	assert.Equal(t, 1, f.Report.FieldCountMismatch)
	assert.Contains(t, Remediation(err), "check field counts against header")
}

func TestIngest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, DialectCSV).Ingest(ctx, "name\nA")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngest_UniqueIDs(t *testing.T) {
	ids := []string{"x", "x", "y"}
	var i int
	n := &Normalizer{NewID: func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}}

	res, err := newTestPipeline(t, DialectCSV, WithNormalizer(n)).Ingest(context.Background(), "name\nA\nB")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "x", res.Records[0].ID)
	assert.Equal(t, "y", res.Records[1].ID)
}

func TestIngest_DuplicateIDsExhausted(t *testing.T) {
	n := &Normalizer{NewID: func() string { return "same" }}

	res, err := newTestPipeline(t, DialectCSV, WithNormalizer(n)).Ingest(context.Background(), "name\nA\nB")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Report.ProcessingError)
}

func TestIngest_PanicRecovered(t *testing.T) {
	n := &Normalizer{NewID: func() string { panic("id source down") }}

	_, err := newTestPipeline(t, DialectCSV, WithNormalizer(n)).Ingest(context.Background(), "name\nA\nB")
	require.ErrorIs(t, err, ErrNoRecordsParsed)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, 2, f.Report.ProcessingError)
	assert.Contains(t, f.Report.Skips[0].Detail, "id source down")
}

func TestIngest_MaxSkipDetails(t *testing.T) {
	p := newTestPipeline(t, DialectCSV, WithMaxSkipDetails(1))

	res, err := p.Ingest(context.Background(), "name,description\n,a\n,b\n,c\nD,d")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Report.MissingName)
	assert.Len(t, res.Report.Skips, 1)
	assert.Equal(t, 2, res.Report.SkipsDropped)
}

func TestIngest_SeededImagesReproducible(t *testing.T) {
	var b strings.Builder
	b.WriteString("name\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "role%d\n", i)
	}

	images := func() []string {
		n := &Normalizer{Images: NewSeededImages(42, nil)}
		res, err := newTestPipeline(t, DialectCSV, WithNormalizer(n)).Ingest(context.Background(), b.String())
		require.NoError(t, err)
		out := make([]string, len(res.Records))
		for i, rec := range res.Records {
			out[i] = rec.ImageURL
		}
		return out
	}

	assert.Equal(t, images(), images())
}

func TestIngest_Concurrent(t *testing.T) {
	p := newTestPipeline(t, DialectCSV)
	input := "name,description\nA,x\nB,y\n,z"

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Ingest(context.Background(), input)
			if err != nil {
				errs <- err
				return
			}
			if res.Report.Accepted != 2 || res.Report.MissingName != 1 {
				errs <- fmt.Errorf("unexpected report: %s", res.Report)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestIngestJSON(t *testing.T) {
	p := newTestPipeline(t, DialectJSON)

	input := `[{"name":"A","tags":["x","y"],"isOfficial":true,"type":"game"},{"description":"no name"},42]`
	res, err := p.IngestJSON(context.Background(), []byte(input))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "A", rec.Name)
	assert.Equal(t, []string{"x", "y"}, rec.Tags)
	assert.True(t, rec.IsOfficial)
	assert.Equal(t, CategoryOfficial, rec.Category)
	assert.Equal(t, TypeGame, rec.Type)

	r := res.Report
	assert.Equal(t, 3, r.TotalRows)
	assert.Equal(t, 0, r.HeaderRows)
	assert.Equal(t, 1, r.MissingName)
	assert.Equal(t, 1, r.ProcessingError)
	require.Len(t, r.Skips, 2)
	assert.Equal(t, 2, r.Skips[1].Row)
	assert.Equal(t, "element is number, not an object", r.Skips[1].Detail)
}

func TestIngestJSON_Failures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: " ", wantErr: ErrEmptyInput},
		{name: "object instead of array", input: `{"name":"A"}`, wantErr: ErrInvalidJSONShape},
		{name: "malformed", input: `[{"name":`, wantErr: ErrInvalidJSONShape},
		{name: "empty array", input: `[]`, wantErr: ErrNoRecordsParsed},
		{name: "only nested values", input: `[{"name":{"first":"A"}}]`, wantErr: ErrNoRecordsParsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestPipeline(t, DialectJSON).IngestJSON(context.Background(), []byte(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPipeline_RunDispatch(t *testing.T) {
	res, err := newTestPipeline(t, DialectJSON).Run(context.Background(), []byte(`[{"name":"A"}]`))
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)

	res, err = newTestPipeline(t, DialectCSV).Run(context.Background(), []byte("name\nA"))
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestPipeline_IngestReader(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, "name,description\r\n小樱,魔卡\x80少女\r\n"...)

	res, err := newTestPipeline(t, DialectCSV).IngestReader(context.Background(), bytes.NewReader(input), int64(len(input)))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "魔卡\uFFFD少女", res.Records[0].Description)
}

func TestPipeline_CustomDialect(t *testing.T) {
	require.NoError(t, RegisterDialect(Dialect{
		Name:    "test-fr",
		Format:  FormatDelimited,
		Aliases: map[string]string{"nom": FieldName, "texte": FieldDescription},
	}))
	t.Cleanup(func() { unregisterDialect("test-fr") })

	res, err := newTestPipeline(t, "test-fr").Ingest(context.Background(), "nom,texte\nAmélie,héroïne")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Amélie", res.Records[0].Name)
	assert.Equal(t, "héroïne", res.Records[0].Description)
}
