package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/db/query"
)

func TestNewTargetsModelAndIndex(t *testing.T) {
	q := query.New("users", "by_email")
	require.Equal(t, "users", q.Model)
	require.Equal(t, "by_email", q.Index)
}

func TestWhereAppendsCondition(t *testing.T) {
	q := query.New("users", "by_age").Where(1, query.Gte, 18)
	require.Len(t, q.Conditions, 1)
	require.Equal(t, query.Gte, q.Conditions[0].Op)
	require.Equal(t, 18, q.Conditions[0].Value)
}

func TestWhereInSetsValues(t *testing.T) {
	q := query.New("users", "by_tag").WhereIn(2, []any{"a", "b"})
	require.Len(t, q.Conditions, 1)
	require.Equal(t, query.In, q.Conditions[0].Op)
	require.Equal(t, []any{"a", "b"}, q.Conditions[0].Values)
}

func TestTopicAccumulates(t *testing.T) {
	q := query.New("users", "by_email").Topic("tenantA").Topic("tenantB")
	require.Equal(t, []string{"tenantA", "tenantB"}, q.Topics)
}

func TestOrderByAndLimit(t *testing.T) {
	q := query.New("users", "by_email").OrderBy(query.Desc).WithLimit(10)
	require.Equal(t, query.Desc, q.Order)
	require.Equal(t, 10, q.Limit)
}

func TestChainingReturnsSameQuery(t *testing.T) {
	q := query.New("users", "by_email").
		Where(1, query.Eq, "x").
		Topic("t").
		OrderBy(query.Asc).
		WithLimit(5)
	require.Equal(t, "users", q.Model)
	require.Len(t, q.Conditions, 1)
	require.Len(t, q.Topics, 1)
	require.Equal(t, 5, q.Limit)
}
