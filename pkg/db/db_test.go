package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/daterange"
	"github.com/evgeniums/hatn-sub006/pkg/db"
	"github.com/evgeniums/hatn-sub006/pkg/db/query"
)

const (
	fieldEmail uint32 = db.FirstUserField
	fieldAge   uint32 = db.FirstUserField + 1
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })
	return d
}

func usersModel() *db.Model {
	return &db.Model{
		ID:   1,
		Name: "users",
		Indexes: []db.IndexDef{
			{Name: "by_email", Fields: []uint32{fieldEmail}, Unique: true},
			{Name: "by_age", Fields: []uint32{fieldAge}},
		},
	}
}

func TestCreateReadDelete(t *testing.T) {
	d := openTestDB(t)
	model := usersModel()
	require.NoError(t, d.RegisterModel(model))

	obj := db.NewObject("users")
	obj.SetString(fieldEmail, "a@example.com")
	obj.SetInt(fieldAge, 30)

	id, err := d.Create("users", "tenant1", obj, nil)
	require.NoError(t, err)
	require.False(t, id.IsNil())

	got, err := d.Read("users", "tenant1", id, nil)
	require.NoError(t, err)
	f, ok := got.Get(fieldEmail)
	require.True(t, ok)
	require.Equal(t, "a@example.com", f.String)

	require.NoError(t, d.Delete("users", "tenant1", id, nil, nil))
	_, err = d.Read("users", "tenant1", id, nil)
	require.Error(t, err)
}

func TestUniqueIndexViolation(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.RegisterModel(usersModel()))

	a := db.NewObject("users")
	a.SetString(fieldEmail, "dup@example.com")
	a.SetInt(fieldAge, 20)
	_, err := d.Create("users", "t", a, nil)
	require.NoError(t, err)

	b := db.NewObject("users")
	b.SetString(fieldEmail, "dup@example.com")
	b.SetInt(fieldAge, 25)
	_, err = d.Create("users", "t", b, nil)
	require.Error(t, err)
}

func TestUpdateReturnsBeforeAndAfter(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.RegisterModel(usersModel()))

	obj := db.NewObject("users")
	obj.SetString(fieldEmail, "c@example.com")
	obj.SetInt(fieldAge, 40)
	id, err := d.Create("users", "t", obj, nil)
	require.NoError(t, err)

	before, err := d.Update("users", "t", id, nil, func(u *dataunit.Unit) {
		u.SetInt(fieldAge, 41)
	}, db.UpdateBefore, nil)
	require.NoError(t, err)
	f, ok := before.Get(fieldAge)
	require.True(t, ok)
	require.EqualValues(t, 40, f.Int)

	after, err := d.Update("users", "t", id, nil, func(u *dataunit.Unit) {
		u.SetInt(fieldAge, 42)
	}, db.UpdateAfter, nil)
	require.NoError(t, err)
	f, ok = after.Get(fieldAge)
	require.True(t, ok)
	require.EqualValues(t, 42, f.Int)
}

func TestFindByRangeOnSecondIndex(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.RegisterModel(usersModel()))

	for i, age := range []int64{18, 25, 40, 60} {
		obj := db.NewObject("users")
		obj.SetString(fieldEmail, stringFromIndex(i))
		obj.SetInt(fieldAge, age)
		_, err := d.Create("users", "t", obj, nil)
		require.NoError(t, err)
	}

	q := query.New("users", "by_age").Where(fieldAge, query.Gte, int64(25)).Topic("t")
	results, err := d.Find(q)
	require.NoError(t, err)
	require.Len(t, results, 3)

	n, err := d.Count(q)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestNonUniqueIndexAllowsDuplicateValues(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.RegisterModel(usersModel()))

	a := db.NewObject("users")
	a.SetString(fieldEmail, "a@example.com")
	a.SetInt(fieldAge, 33)
	idA, err := d.Create("users", "t", a, nil)
	require.NoError(t, err)

	b := db.NewObject("users")
	b.SetString(fieldEmail, "b@example.com")
	b.SetInt(fieldAge, 33)
	idB, err := d.Create("users", "t", b, nil)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)

	q := query.New("users", "by_age").Where(fieldAge, query.Eq, int64(33)).Topic("t")
	results, err := d.Find(q)
	require.NoError(t, err)
	require.Len(t, results, 2, "both objects sharing age=33 must survive under the non-unique index")

	gotA, err := d.Read("users", "t", idA, nil)
	require.NoError(t, err)
	f, _ := gotA.Get(fieldEmail)
	require.Equal(t, "a@example.com", f.String)
}

func TestTTLSweepDeletesIndexEntries(t *testing.T) {
	const fieldExpiresAt = db.FirstUserField + 2
	d := openTestDB(t)
	model := &db.Model{
		ID:         4,
		Name:       "tickets",
		TTLField:   fieldExpiresAt,
		TTLSeconds: 0,
		Indexes: []db.IndexDef{
			{Name: "by_code", Fields: []uint32{fieldEmail}, Unique: true},
		},
	}
	require.NoError(t, d.RegisterModel(model))

	obj := db.NewObject("tickets")
	obj.SetString(fieldEmail, "code-1")
	db.SetFieldTime(obj, fieldExpiresAt, time.Now().Add(-time.Second))
	_, err := d.Create("tickets", "t", obj, nil)
	require.NoError(t, err)

	require.NoError(t, d.SweepTTLOnce())

	fresh := db.NewObject("tickets")
	fresh.SetString(fieldEmail, "code-1")
	db.SetFieldTime(fresh, fieldExpiresAt, time.Now().Add(time.Hour))
	_, err = d.Create("tickets", "t", fresh, nil)
	require.NoError(t, err, "unique value must be reusable once the sweep has dropped the expired object's index entry")
}

func TestTTLExpiry(t *testing.T) {
	const fieldExpiresAt = db.FirstUserField + 2
	d := openTestDB(t)
	model := &db.Model{
		ID:         2,
		Name:       "sessions",
		TTLField:   fieldExpiresAt,
		TTLSeconds: 0,
	}
	require.NoError(t, d.RegisterModel(model))

	obj := db.NewObject("sessions")
	db.SetFieldTime(obj, fieldExpiresAt, time.Now().Add(-time.Second))
	id, err := d.Create("sessions", "t", obj, nil)
	require.NoError(t, err)

	_, err = d.Read("sessions", "t", id, nil)
	require.Error(t, err)
}

// TestDatePartitionQueryShortCircuits exercises spec.md §8's scenario 4:
// with date_partition_mode=Month, a query bounded to January must not
// return objects that live in February's partition.
func TestDatePartitionQueryShortCircuits(t *testing.T) {
	const fieldAt = db.FirstUserField

	d := openTestDB(t)
	model := &db.Model{
		ID:             5,
		Name:           "events",
		Partitioned:    true,
		PartitionType:  daterange.Month,
		PartitionField: fieldAt,
		Indexes: []db.IndexDef{
			{Name: "by_at", Fields: []uint32{fieldAt}},
		},
	}
	require.NoError(t, d.RegisterModel(model))

	jan := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)

	janObj := db.NewObject("events")
	db.SetFieldTime(janObj, fieldAt, jan)
	janID, err := d.Create("events", "t", janObj, nil)
	require.NoError(t, err)

	febObj := db.NewObject("events")
	db.SetFieldTime(febObj, fieldAt, feb)
	_, err = d.Create("events", "t", febObj, nil)
	require.NoError(t, err)

	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	to := time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC).Unix()
	q := query.New("events", "by_at").Topic("t")
	q.DateFrom, q.DateTo = &from, &to

	results, err := d.Find(q)
	require.NoError(t, err)
	require.Len(t, results, 1, "query bounded to January must not return February's object")
	id, ok := db.ObjectIDOf(results[0])
	require.True(t, ok)
	require.Equal(t, janID, id)

	unbounded := query.New("events", "by_at").Topic("t")
	all, err := d.Find(unbounded)
	require.NoError(t, err)
	require.Len(t, all, 2, "an unbounded query must still see both months")
}

func stringFromIndex(i int) string {
	return string(rune('a' + i))
}
