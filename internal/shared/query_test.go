package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

var testColumns = Columns{
	"stageId":   "p.stage_id",
	"title":     "p.title",
	"createdAt": "p.created_at",
	"clientId":  "p.client_id",
}

func TestParseListQueryDefaults(t *testing.T) {
	q, err := ParseListQuery(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPerPage, q.PerPage)
	assert.Equal(t, 0, q.Offset())
}

func TestParseListQueryClampsPerPage(t *testing.T) {
	q, err := ParseListQuery(url.Values{"page": {"3"}, "perPage": {"1000"}})
	require.NoError(t, err)
	assert.Equal(t, MaxPerPage, q.Limit())
	assert.Equal(t, 2*MaxPerPage, q.Offset())
}

func TestParseListQueryRejectsBadJSON(t *testing.T) {
	_, err := ParseListQuery(url.Values{"where": {"{nope"}})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = ParseListQuery(url.Values{"orderBy": {`{"title":"sideways"}`}})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestFilterBuildsPositionalConditions(t *testing.T) {
	q, err := ParseListQuery(url.Values{
		"where": {`{"stageId":"abc","title":{"contains":"Peru"},"clientId":null}`},
	})
	require.NoError(t, err)

	conds, args, err := q.Filter(testColumns, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"p.client_id IS NULL", "p.stage_id = $2", "p.title ILIKE $3"}, conds)
	assert.Equal(t, []any{"abc", "%Peru%"}, args)
}

func TestFilterRejectsUnknownField(t *testing.T) {
	q := ListQuery{Where: map[string]any{"password": "x"}}
	_, _, err := q.Filter(testColumns, 1)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestOrderClause(t *testing.T) {
	q, err := ParseListQuery(url.Values{"orderBy": {`[{"createdAt":"desc"},{"title":"asc"}]`}})
	require.NoError(t, err)

	clause, err := q.OrderClause(testColumns, "p.number DESC")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY p.created_at DESC, p.title ASC", clause)

	clause, err = ListQuery{}.OrderClause(testColumns, "p.number DESC")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY p.number DESC", clause)
}
