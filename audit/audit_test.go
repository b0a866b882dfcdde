package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacedetect/types"
)

func TestParseTrace(t *testing.T) {
	in := "C 1 100\nD 1 104\n\n  C 95 200  \nD 95 203\n"
	evs, err := ParseTrace(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []types.Event{
		{Kind: types.Change, Index: 1, Stamp: 100},
		{Kind: types.Detection, Index: 1, Stamp: 104},
		{Kind: types.Change, Index: 95, Stamp: 200},
		{Kind: types.Detection, Index: 95, Stamp: 203},
	}, evs)
}

func TestParseTraceRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown_kind", "X 1 100\n"},
		{"long_kind", "CD 1 100\n"},
		{"missing_stamp", "C 1\n"},
		{"extra_field", "C 1 100 7\n"},
		{"negative_index", "C -1 100\n"},
		{"index_overflow", "C 4294967296 100\n"},
		{"bad_stamp", "D 1 soon\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTrace(strings.NewReader("C 0 1\n" + tc.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			assert.Contains(t, err.Error(), " 2: ")
		})
	}
}

func trace(t *testing.T, s string) []types.Event {
	t.Helper()
	evs, err := ParseTrace(strings.NewReader(s))
	require.NoError(t, err)
	return evs
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		trace string
		want  Report
	}{
		{
			name:  "empty",
			trace: "",
			want:  Report{},
		},
		{
			name: "well_formed",
			trace: `C 1 100
D 1 104
C 1 200
C 2 201
D 2 203
D 1 210
`,
			want: Report{
				Changes: 3, Detections: 3, Signals: 2, Matched: 3,
				LatencyMin: 2, LatencyMean: 16.0 / 3, LatencyMax: 10,
			},
		},
		{
			name: "missed_and_pending",
			trace: `C 4 10
C 4 20
D 4 25
C 4 30
`,
			want: Report{
				Changes: 3, Detections: 1, Signals: 1, Matched: 1, Missed: 1, Pending: 1,
				LatencyMin: 5, LatencyMean: 5, LatencyMax: 5,
			},
		},
		{
			name: "spurious",
			trace: `D 7 10
C 7 20
D 7 21
D 7 22
`,
			want: Report{
				Changes: 1, Detections: 3, Signals: 1, Matched: 1, Spurious: 2,
				LatencyMin: 1, LatencyMean: 1, LatencyMax: 1,
			},
		},
		{
			name: "late",
			trace: `C 3 50
D 3 40
`,
			want: Report{
				Changes: 1, Detections: 1, Signals: 1, Matched: 1, Late: 1,
				LatencyMin: -10, LatencyMean: -10, LatencyMax: -10,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Verify(context.Background(), trace(t, tc.trace))
			require.NoError(t, err)
			assert.InDelta(t, tc.want.LatencyMean, got.LatencyMean, 1e-9)
			got.LatencyMean, tc.want.LatencyMean = 0, 0
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClean(t *testing.T) {
	assert.True(t, Report{Matched: 3, Pending: 1}.Clean())
	assert.False(t, Report{Missed: 1}.Clean())
	assert.False(t, Report{Spurious: 1}.Clean())
	assert.False(t, Report{Late: 1}.Clean())
}

func TestLoadAppendsAcrossCalls(t *testing.T) {
	ctx := context.Background()
	a, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Load(ctx, trace(t, "C 1 10\n")))
	require.NoError(t, a.Load(ctx, trace(t, "D 1 12\nC 1 20\n")))

	r, err := a.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Matched)
	assert.Equal(t, int64(1), r.Pending)
	assert.True(t, r.Clean())
}

func TestLoadHonoursContext(t *testing.T) {
	a, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, a.Load(ctx, trace(t, "C 1 10\n")))
}

func BenchmarkVerify(b *testing.B) {
	evs := make([]types.Event, 0, 2000)
	for i := 0; i < 1000; i++ {
		evs = append(evs,
			types.Event{Kind: types.Change, Index: uint32(i % 40), Stamp: int64(i * 10)},
			types.Event{Kind: types.Detection, Index: uint32(i % 40), Stamp: int64(i*10 + 3)},
		)
	}
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Verify(ctx, evs); err != nil {
			b.Fatal(err)
		}
	}
}
