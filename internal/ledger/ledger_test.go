package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/files"
	"qrattend/internal/utils"
)

type brokenKV struct{ files.KV }

func (brokenKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

// thursday is 2026-10-15 09:05 in Manila.
func thursday(t *testing.T) (time.Time, *time.Location) {
	t.Helper()
	loc := time.FixedZone("PHT", 8*60*60)
	return time.Date(2026, time.October, 15, 9, 5, 0, 0, loc), loc
}

func newLedger(t *testing.T, kv files.KV) (*Ledger, *time.Time) {
	now, loc := thursday(t)
	clock := &now
	return New(kv, WithClock(func() time.Time { return *clock }), WithLocation(loc)), clock
}

func TestKey(t *testing.T) {
	assert.Equal(t, "2026_October_Thursday_WMAD 1-1", Key(2026, time.October, time.Thursday, "WMAD 1-1"))

	now, _ := thursday(t)
	assert.Equal(t, "2026_October_Thursday_wmad 1-1", KeyFor(now, "wmad 1-1"))
}

func TestRecordIsIdempotent(t *testing.T) {
	l, clock := newLedger(t, files.NewMemoryKV())
	ctx := context.Background()

	e, res, err := l.Record(ctx, "S100", "Juan Dela Cruz", "WMAD 1-1")
	require.NoError(t, err)
	assert.Equal(t, Recorded, res)
	assert.Equal(t, "10/15/2026", e.Date)
	assert.Equal(t, "09:05 AM", e.Time)
	assert.Equal(t, clock.UnixMilli(), e.Timestamp)

	*clock = clock.Add(3 * time.Hour)
	again, res, err := l.Record(ctx, "S100", "Juan Dela Cruz", "WMAD 1-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyMarked, res)
	assert.Equal(t, e, again)

	entries := l.EntriesFor(2026, time.October, time.Thursday, "WMAD 1-1")
	require.Len(t, entries, 1)

	// a week later is the same bucket
	*clock = clock.AddDate(0, 0, 7)
	_, res, err = l.Record(ctx, "S100", "Juan Dela Cruz", "WMAD 1-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyMarked, res)

	// other sections are separate buckets
	_, res, err = l.Record(ctx, "S100", "Juan Dela Cruz", "WMAD 1-2")
	require.NoError(t, err)
	assert.Equal(t, Recorded, res)
}

func TestRecordUsesConfiguredZone(t *testing.T) {
	now, loc := thursday(t)
	// 23:30 UTC on Wednesday is already Thursday in Manila.
	utc := time.Date(2026, time.October, 14, 23, 30, 0, 0, time.UTC)
	l := New(files.NewMemoryKV(), WithClock(func() time.Time { return utc }), WithLocation(loc))

	e, _, err := l.Record(context.Background(), "S1", "Ana", "WMAD 1-1")
	require.NoError(t, err)
	assert.Equal(t, "10/15/2026", e.Date)
	assert.Equal(t, "07:30 AM", e.Time)
	assert.Equal(t, []string{KeyFor(now, "WMAD 1-1")}, l.Buckets())
}

func TestSearch(t *testing.T) {
	l, _ := newLedger(t, files.NewMemoryKV())
	ctx := context.Background()
	for _, s := range [][2]string{{"S1", "Ana Reyes"}, {"S2", "Ben Santos"}, {"X31", "Carla Reyes"}} {
		_, _, err := l.Record(ctx, s[0], s[1], "WMAD 1-1")
		require.NoError(t, err)
	}

	names := func(q string) []string {
		var out []string
		for _, e := range l.Search(2026, time.October, time.Thursday, "WMAD 1-1", q) {
			out = append(out, e.StudentName)
		}
		return out
	}
	assert.Equal(t, []string{"Ana Reyes", "Ben Santos", "Carla Reyes"}, names(""))
	assert.Equal(t, []string{"Ana Reyes", "Carla Reyes"}, names("reyes"))
	assert.Equal(t, []string{"Carla Reyes"}, names("x3"))
	assert.Empty(t, names("nobody"))

	// searching must not disturb the stored order
	assert.Len(t, l.EntriesFor(2026, time.October, time.Thursday, "WMAD 1-1"), 3)
}

func TestRemove(t *testing.T) {
	l, _ := newLedger(t, files.NewMemoryKV())
	ctx := context.Background()
	_, _, _ = l.Record(ctx, "S1", "Ana", "WMAD 1-1")
	_, _, _ = l.Record(ctx, "S2", "Ben", "WMAD 1-1")
	key := Key(2026, time.October, time.Thursday, "WMAD 1-1")

	_, err := l.Remove(ctx, key, 5)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
	_, err = l.Remove(ctx, key, -1)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
	assert.Len(t, l.Bucket(key), 2)

	removed, err := l.Remove(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, "S1", removed.StudentID)
	require.Len(t, l.Bucket(key), 1)
	assert.Equal(t, "S2", l.Bucket(key)[0].StudentID)

	_, err = l.Remove(ctx, key, 0)
	require.NoError(t, err)
	assert.Empty(t, l.Buckets())

	// the student can be marked again after removal
	_, res, err := l.Record(ctx, "S1", "Ana", "WMAD 1-1")
	require.NoError(t, err)
	assert.Equal(t, Recorded, res)
}

func TestUniqueStudentsAndSubscribe(t *testing.T) {
	l, clock := newLedger(t, files.NewMemoryKV())
	ctx := context.Background()
	var keys []string
	l.Subscribe(func(key string) { keys = append(keys, key) })

	_, _, _ = l.Record(ctx, "S1", "Ana", "WMAD 1-1")
	_, _, _ = l.Record(ctx, "S1", "Ana", "WMAD 1-1")
	*clock = clock.AddDate(0, 0, 1)
	_, _, _ = l.Record(ctx, "S1", "Ana", "WMAD 1-1")
	_, _, _ = l.Record(ctx, "S2", "Ben", "WMAD 1-2")

	assert.Equal(t, 2, l.UniqueStudents())
	assert.Equal(t, []string{
		"2026_October_Thursday_WMAD 1-1",
		"2026_October_Friday_WMAD 1-1",
		"2026_October_Friday_WMAD 1-2",
	}, keys)
	assert.Equal(t, []string{
		"2026_October_Friday_WMAD 1-1",
		"2026_October_Friday_WMAD 1-2",
		"2026_October_Thursday_WMAD 1-1",
	}, l.Buckets())
}

func TestPersistAndLoad(t *testing.T) {
	kv := files.NewMemoryKV()
	l, _ := newLedger(t, kv)
	ctx := context.Background()
	_, _, err := l.Record(ctx, "S100", "Juan Dela Cruz", "WMAD 1-1")
	require.NoError(t, err)

	raw, err := kv.Get(ctx, StoreKey)
	require.NoError(t, err)
	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	bucket := doc["2026_October_Thursday_WMAD 1-1"]
	require.Len(t, bucket, 1)
	assert.Equal(t, "S100", bucket[0]["studentId"])
	assert.Equal(t, "Juan Dela Cruz", bucket[0]["studentName"])

	reloaded, _ := newLedger(t, kv)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, l.Bucket("2026_October_Thursday_WMAD 1-1"), reloaded.Bucket("2026_October_Thursday_WMAD 1-1"))

	require.NoError(t, kv.Set(ctx, StoreKey, []byte("[]")))
	assert.True(t, utils.IsKind(New(kv).Load(ctx), utils.KindPersistence))
}

func TestLoadNullDocument(t *testing.T) {
	kv := files.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, StoreKey, []byte("null")))

	l, _ := newLedger(t, kv)
	require.NoError(t, l.Load(ctx))
	assert.Empty(t, l.Buckets())

	_, res, err := l.Record(ctx, "S1", "Ana", "WMAD 1-1")
	require.NoError(t, err)
	assert.Equal(t, Recorded, res)
	assert.Len(t, l.EntriesFor(2026, time.October, time.Thursday, "WMAD 1-1"), 1)
}

func TestPersistenceFailureKeepsMemory(t *testing.T) {
	l, _ := newLedger(t, brokenKV{files.NewMemoryKV()})

	_, res, err := l.Record(context.Background(), "S1", "Ana", "WMAD 1-1")
	assert.Equal(t, Recorded, res)
	assert.True(t, utils.IsKind(err, utils.KindPersistence))
	assert.Len(t, l.EntriesFor(2026, time.October, time.Thursday, "WMAD 1-1"), 1)
}
