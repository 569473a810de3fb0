package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/duckmesh/arrowscan/internal/columnar"
	"github.com/duckmesh/arrowscan/internal/dataset"
)

var eventsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "active", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "elapsed", Type: &arrow.DurationType{Unit: arrow.Second}, Nullable: true},
}, nil)

type fakeProvider struct {
	mem     memory.Allocator
	batches [][]int64
	version uint64
	openErr error
	scanErr error
	opened  int
	scans   []dataset.ScanRequest
}

func (p *fakeProvider) Open(_ context.Context, path string) (*dataset.Handle, error) {
	p.opened++
	if p.openErr != nil {
		return nil, p.openErr
	}
	manifest := dataset.Manifest{Version: p.version}
	for i, ids := range p.batches {
		manifest.Files = append(manifest.Files, dataset.DataFile{
			Path:        fmt.Sprintf("data/part-%d.parquet", i),
			RecordCount: int64(len(ids)),
		})
	}
	return dataset.NewHandle(path, manifest, eventsSchema), nil
}

func (p *fakeProvider) Scan(_ context.Context, _ *dataset.Handle, req dataset.ScanRequest) (*dataset.Batches, error) {
	p.scans = append(p.scans, req)
	if p.scanErr != nil {
		return nil, p.scanErr
	}
	out := &dataset.Batches{Schema: eventsSchema}
	for _, ids := range p.batches {
		out.Records = append(out.Records, eventsRecord(p.mem, ids))
	}
	return out, nil
}

func (p *fakeProvider) Stats(_ context.Context, h *dataset.Handle) (dataset.Stats, error) {
	return dataset.Stats{Version: h.Version(), RowCount: h.Manifest().RowCount()}, nil
}

func eventsRecord(mem memory.Allocator, ids []int64) arrow.Record {
	b := array.NewRecordBuilder(mem, eventsSchema)
	defer b.Release()
	for _, id := range ids {
		b.Field(0).(*array.Int64Builder).Append(id)
		b.Field(1).(*array.StringBuilder).Append(fmt.Sprintf("event-%d", id))
		b.Field(2).(*array.BooleanBuilder).Append(id%2 == 0)
		b.Field(3).(*array.Float64Builder).Append(float64(id) / 2)
		if id%2 == 0 {
			b.Field(4).(*array.DurationBuilder).AppendNull()
		} else {
			b.Field(4).(*array.DurationBuilder).Append(arrow.Duration(id))
		}
	}
	return b.NewRecord()
}

func newTestScanner(t *testing.T, provider *fakeProvider, opts Options) *Service {
	t.Helper()
	if provider.mem == nil {
		mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
		t.Cleanup(func() { mem.AssertSize(t, 0) })
		provider.mem = mem
	}
	svc, err := New(provider, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func limitOf(n int64) *int64 { return &n }

func rowIDs(t *testing.T, rows []columnar.Value) []string {
	t.Helper()
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, ok := row.Field("id")
		if !ok {
			t.Fatalf("row %v has no id member", row.Interface())
		}
		ids = append(ids, id.Number())
	}
	return ids
}

func TestNewRequiresProvider(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestTableInfoProjectsColumnsAndWarns(t *testing.T) {
	svc := newTestScanner(t, &fakeProvider{version: 3}, Options{})

	info, err := svc.TableInfo(context.Background(), "events")
	if err != nil {
		t.Fatalf("TableInfo() error = %v", err)
	}
	want := []ColumnInfo{
		{Name: "id", DataType: "int8", Nullable: false},
		{Name: "name", DataType: "text", Nullable: true},
		{Name: "active", DataType: "boolean", Nullable: true},
		{Name: "score", DataType: "float8", Nullable: true},
		{Name: "elapsed", DataType: "text", Nullable: true},
	}
	if len(info.Columns) != len(want) {
		t.Fatalf("columns = %+v, want %+v", info.Columns, want)
	}
	for i := range want {
		if info.Columns[i] != want[i] {
			t.Fatalf("column %d = %+v, want %+v", i, info.Columns[i], want[i])
		}
	}
	if len(info.Warnings) != 1 || info.Warnings[0].Column != "elapsed" {
		t.Fatalf("warnings = %+v, want one for elapsed", info.Warnings)
	}
	if info.Path != "events" || info.Version != 3 {
		t.Fatalf("info = %+v, want path events version 3", info)
	}
}

func TestScanCrossesBatchesInOrderUpToLimit(t *testing.T) {
	provider := &fakeProvider{version: 1, batches: [][]int64{{1, 2, 3}, {}, {4, 5, 6, 7}}}
	svc := newTestScanner(t, provider, Options{})

	rows, err := svc.Scan(context.Background(), "events", ScanOptions{Limit: limitOf(5)})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	got := fmt.Sprint(rowIDs(t, rows))
	if got != "[1 2 3 4 5]" {
		t.Fatalf("ids = %s, want [1 2 3 4 5]", got)
	}
	if len(provider.scans) != 1 || provider.scans[0].Limit == nil || *provider.scans[0].Limit != 5 {
		t.Fatalf("provider scan requests = %+v, want limit 5 forwarded", provider.scans)
	}
}

func TestScanWithoutLimitExhaustsBatches(t *testing.T) {
	svc := newTestScanner(t, &fakeProvider{version: 1, batches: [][]int64{{1, 2}, {3}}}, Options{})

	rows, err := svc.Scan(context.Background(), "events", ScanOptions{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := fmt.Sprint(rowIDs(t, rows)); got != "[1 2 3]" {
		t.Fatalf("ids = %s, want [1 2 3]", got)
	}
}

func TestScanNonPositiveLimitReturnsEmptyRows(t *testing.T) {
	for _, limit := range []int64{0, -4} {
		svc := newTestScanner(t, &fakeProvider{version: 1, batches: [][]int64{{1, 2}}}, Options{})
		rows, err := svc.Scan(context.Background(), "events", ScanOptions{Limit: limitOf(limit)})
		if err != nil {
			t.Fatalf("Scan(limit=%d) error = %v", limit, err)
		}
		if rows == nil || len(rows) != 0 {
			t.Fatalf("Scan(limit=%d) rows = %v, want empty non-nil", limit, rows)
		}
	}
}

func TestScanRowObjectsFollowSchemaOrder(t *testing.T) {
	svc := newTestScanner(t, &fakeProvider{version: 1, batches: [][]int64{{3}}}, Options{})

	rows, err := svc.Scan(context.Background(), "events", ScanOptions{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	raw, err := rows[0].MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	want := `{"id":3,"name":"event-3","active":false,"score":1.5,"elapsed":"<unsupported_type: duration[s]>"}`
	if string(raw) != want {
		t.Fatalf("row = %s, want %s", raw, want)
	}
}

func TestTableStatsIgnoresScanLimit(t *testing.T) {
	provider := &fakeProvider{version: 7, batches: [][]int64{{1, 2, 3}, {4, 5}}}
	svc := newTestScanner(t, provider, Options{})

	rows, err := svc.Scan(context.Background(), "events", ScanOptions{Limit: limitOf(2)})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	stats, err := svc.TableStats(context.Background(), "events")
	if err != nil {
		t.Fatalf("TableStats() error = %v", err)
	}
	want := columnar.TableStats{Version: 7, RowCount: 5, ColumnCount: 5}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestScanEachDoesNotEmitOnProviderFailure(t *testing.T) {
	cases := []struct {
		name     string
		provider *fakeProvider
		kind     error
	}{
		{
			name:     "open",
			provider: &fakeProvider{openErr: &dataset.Error{Op: "open", Path: "missing", Kind: dataset.ErrOpen}},
			kind:     dataset.ErrOpen,
		},
		{
			name:     "filter",
			provider: &fakeProvider{version: 1, scanErr: &dataset.Error{Op: "scan", Path: "events", Kind: dataset.ErrFilterSyntax}},
			kind:     dataset.ErrFilterSyntax,
		},
		{
			name:     "fetch",
			provider: &fakeProvider{version: 1, scanErr: &dataset.Error{Op: "scan", Path: "events", Kind: dataset.ErrInternal}},
			kind:     dataset.ErrInternal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestScanner(t, tc.provider, Options{})
			called := 0
			_, err := svc.ScanEach(context.Background(), "events", ScanOptions{Filter: "id > 1"}, func(columnar.Value) error {
				called++
				return nil
			})
			if !errors.Is(err, tc.kind) {
				t.Fatalf("ScanEach() error = %v, want %v", err, tc.kind)
			}
			if called != 0 {
				t.Fatalf("row func called %d times, want 0", called)
			}
		})
	}
}

func TestScanEachStopsOnRowFuncError(t *testing.T) {
	svc := newTestScanner(t, &fakeProvider{version: 1, batches: [][]int64{{1, 2, 3}}}, Options{})
	stop := errors.New("stop")
	seen := 0
	_, err := svc.ScanEach(context.Background(), "events", ScanOptions{}, func(columnar.Value) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("ScanEach() error = %v, want stop", err)
	}
	if seen != 2 {
		t.Fatalf("rows seen = %d, want 2", seen)
	}
}

func TestScanEachReportsVersionAndRowCount(t *testing.T) {
	svc := newTestScanner(t, &fakeProvider{version: 4, batches: [][]int64{{1, 2}, {3, 4}}}, Options{})
	result, err := svc.ScanEach(context.Background(), "events", ScanOptions{Limit: limitOf(3)}, func(columnar.Value) error { return nil })
	if err != nil {
		t.Fatalf("ScanEach() error = %v", err)
	}
	if result != (ScanResult{Version: 4, Rows: 3}) {
		t.Fatalf("result = %+v, want version 4 rows 3", result)
	}
}

func TestMaxLimitCapsAndRejects(t *testing.T) {
	provider := &fakeProvider{version: 1, batches: [][]int64{{1, 2, 3, 4}}}
	svc := newTestScanner(t, provider, Options{MaxLimit: 2})

	rows, err := svc.Scan(context.Background(), "events", ScanOptions{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 under max limit", len(rows))
	}

	_, err = svc.Scan(context.Background(), "events", ScanOptions{Limit: limitOf(3)})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Scan(limit=3) error = %v, want ErrLimitExceeded", err)
	}
	if provider.opened != 1 {
		t.Fatalf("opened = %d, want rejected scan not to open the dataset", provider.opened)
	}
}

func TestScanForwardsFilterAndColumns(t *testing.T) {
	provider := &fakeProvider{version: 1, batches: [][]int64{{1}}}
	svc := newTestScanner(t, provider, Options{})

	_, err := svc.Scan(context.Background(), "events", ScanOptions{Filter: "id = 1", Columns: []string{"id"}})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	req := provider.scans[0]
	if req.Filter != "id = 1" || len(req.Columns) != 1 || req.Columns[0] != "id" || req.Limit != nil {
		t.Fatalf("scan request = %+v", req)
	}
}

func TestPlaceholderColumns(t *testing.T) {
	got := placeholderColumns(eventsSchema)
	if len(got) != 1 || got[0] != 4 {
		t.Fatalf("placeholderColumns() = %v, want [4]", got)
	}
	if placeholderColumns(nil) != nil {
		t.Fatal("placeholderColumns(nil) != nil")
	}
}
