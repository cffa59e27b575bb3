package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/basekick-labs/wpilog/internal/wpilog"
	"github.com/basekick-labs/wpilog/internal/wpilog/wpilogtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportConfig() *config.ExportConfig {
	return &config.ExportConfig{
		Format:          FormatParquet,
		Compression:     "snappy",
		UseDictionary:   true,
		WriteStatistics: true,
		DataPageVersion: "2.0",
	}
}

func parseTable(t *testing.T, data []byte) *wpilog.Table {
	t.Helper()
	table, err := wpilog.Parse(data, wpilog.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(table.Release)
	return table
}

func readParquet(t *testing.T, data []byte) (arrow.Table, *file.Reader) {
	t.Helper()
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { pf.Close() })

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	tbl, err := fr.ReadTable(context.Background())
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	return tbl, pf
}

func TestParquetWriter_RoundTrip(t *testing.T) {
	log := wpilogtest.NewWithHeader(0x0100, "team=254").
		Start(1, "speed", "double", `{"unit":"m/s"}`).
		Start(2, "tags", "string[]", "").
		Start(3, "pose", "double[]", "").
		Double(1, 1000, 3.5).
		StringArray(2, 1500, "auto", "blue").
		DoubleArray(3, 2000, 1, 2, 0.5).
		Bytes()
	table := parseTable(t, log)

	var buf bytes.Buffer
	w := NewParquetWriter(exportConfig(), zerolog.Nop())
	require.NoError(t, w.WriteJob(&buf, table, "job-1"))

	tbl, pf := readParquet(t, buf.Bytes())
	assert.Equal(t, int64(3), tbl.NumRows())
	require.Equal(t, int64(4), tbl.NumCols())

	names := make([]string, 0, 4)
	for _, f := range tbl.Schema().Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"timestamp", "speed", "tags", "pose"}, names)
	assert.True(t, arrow.TypeEqual(arrow.FixedWidthTypes.Timestamp_us, tbl.Schema().Field(0).Type))

	kv := pf.MetaData().KeyValueMetadata()
	require.NotNil(t, kv.FindValue(MetaJobID))
	assert.Equal(t, "job-1", *kv.FindValue(MetaJobID))
	require.NotNil(t, kv.FindValue(MetaVersion))
	assert.Equal(t, "1.0", *kv.FindValue(MetaVersion))
	require.NotNil(t, kv.FindValue(wpilog.MetaHeader))
	assert.Equal(t, "team=254", *kv.FindValue(wpilog.MetaHeader))

	speed := tbl.Schema().Field(1)
	unit, ok := speed.Metadata.GetValue(wpilog.MetaMetadata)
	require.True(t, ok)
	assert.Equal(t, `{"unit":"m/s"}`, unit)
}

func TestParquetWriter_NoJobID(t *testing.T) {
	table := parseTable(t, wpilogtest.SpeedPos())

	cfg := exportConfig()
	cfg.DataPageVersion = "1.0"
	cfg.Compression = "zstd"

	var buf bytes.Buffer
	require.NoError(t, NewParquetWriter(cfg, zerolog.Nop()).Write(&buf, table))

	tbl, pf := readParquet(t, buf.Bytes())
	assert.Equal(t, int64(2), tbl.NumRows())
	assert.Nil(t, pf.MetaData().KeyValueMetadata().FindValue(MetaJobID))
}

func TestCompressionCodec(t *testing.T) {
	tests := []struct {
		name string
		want compress.Compression
	}{
		{"snappy", compress.Codecs.Snappy},
		{"gzip", compress.Codecs.Gzip},
		{"zstd", compress.Codecs.Zstd},
		{"lz4", compress.Codecs.Lz4Raw},
		{"uncompressed", compress.Codecs.Uncompressed},
		{"", compress.Codecs.Snappy},
	}
	for _, tt := range tests {
		if got := compressionCodec(tt.name); got != tt.want {
			t.Errorf("compressionCodec(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "1.0", formatVersion(0x0100))
	assert.Equal(t, "2.3", formatVersion(0x0203))
}

func TestCSVWriter_SpeedPos(t *testing.T) {
	table := parseTable(t, wpilogtest.SpeedPos())

	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(exportConfig(), zerolog.Nop()).Write(&buf, table))

	want := "timestamp,speed,pos\n" +
		"1000,3.5,\n" +
		"2000,,7\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVWriter_NullAndLists(t *testing.T) {
	log := wpilogtest.New().
		Start(1, "pose", "double[]", "").
		Start(2, "mode", "string", "").
		DoubleArray(1, 10, 1.5, 2).
		String(2, 20, "auto").
		Bytes()
	table := parseTable(t, log)

	cfg := exportConfig()
	cfg.CSVNull = "NA"

	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(cfg, zerolog.Nop()).Write(&buf, table))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,pose,mode", lines[0])
	assert.Equal(t, `10,"{1.5,2}",NA`, lines[1])
	assert.Equal(t, "20,NA,auto", lines[2])
}

func TestCSVWriter_EmptyTable(t *testing.T) {
	table := parseTable(t, wpilogtest.New().Start(1, "a", "int64", "").Bytes())

	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(exportConfig(), zerolog.Nop()).Write(&buf, table))
	assert.Equal(t, "timestamp,a\n", buf.String())
}
