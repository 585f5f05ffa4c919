package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosql/autosql/internal/dataset"
	"github.com/autosql/autosql/internal/query"
)

type fakeEngine struct {
	loaded  []dataset.Table
	closed  bool
	result  query.Result
	execErr error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Load(_ context.Context, table dataset.Table) error {
	e.loaded = append(e.loaded, table)
	return nil
}

func (e *fakeEngine) Execute(context.Context, string) (query.Result, error) {
	return e.result, e.execErr
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

type fakeFactory struct {
	opened []*fakeEngine
	next   *fakeEngine
}

func (f *fakeFactory) open(context.Context) (query.Engine, error) {
	engine := f.next
	if engine == nil {
		engine = &fakeEngine{}
	}
	f.opened = append(f.opened, engine)
	return engine, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestManager(ttl time.Duration) (*Manager, *fakeFactory, *clock) {
	factory := &fakeFactory{}
	manager := NewManager(factory.open, ttl)
	c := &clock{now: time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)}
	manager.now = c.Now
	return manager, factory, c
}

func sampleTable() (dataset.Table, DatasetInfo) {
	table := dataset.Table{
		Name:    dataset.TableName,
		Columns: []dataset.Column{{Name: "a", Type: dataset.TypeInteger}, {Name: "b", Type: dataset.TypeText}},
		Rows:    [][]any{{int64(1), "x"}},
	}
	return table, DatasetInfo{Filename: "t.csv", Columns: table.Columns, RowCount: 1}
}

func TestCreateAndGet(t *testing.T) {
	manager, _, _ := newTestManager(time.Hour)

	session := manager.Create("alice")
	require.NotEmpty(t, session.Token)

	got, ok := manager.Get(session.Token)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, 1, manager.Count())

	identity, ok := manager.Validate(context.Background(), session.Token)
	require.True(t, ok)
	assert.Equal(t, "alice", identity.Username)

	_, ok = manager.Get("unknown")
	assert.False(t, ok)
	_, ok = manager.Get("")
	assert.False(t, ok)
}

func TestTokensAreUnique(t *testing.T) {
	manager, _, _ := newTestManager(time.Hour)
	a := manager.Create("alice")
	b := manager.Create("alice")
	assert.NotEqual(t, a.Token, b.Token)
	assert.Equal(t, 2, manager.Count())
}

func TestIdleSessionsExpire(t *testing.T) {
	manager, factory, c := newTestManager(30 * time.Minute)
	session := manager.Create("alice")
	table, info := sampleTable()
	_, err := session.LoadDataset(context.Background(), table, info)
	require.NoError(t, err)

	c.now = c.now.Add(20 * time.Minute)
	_, ok := manager.Get(session.Token)
	require.True(t, ok, "activity within the TTL keeps the session alive")

	c.now = c.now.Add(31 * time.Minute)
	_, ok = manager.Get(session.Token)
	assert.False(t, ok)
	assert.Equal(t, 0, manager.Count())
	assert.True(t, factory.opened[0].closed)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	manager, _, c := newTestManager(10 * time.Minute)
	stale := manager.Create("stale")
	c.now = c.now.Add(8 * time.Minute)
	fresh := manager.Create("fresh")
	c.now = c.now.Add(5 * time.Minute)

	assert.Equal(t, 1, manager.Sweep())
	_, ok := manager.Get(stale.Token)
	assert.False(t, ok)
	_, ok = manager.Get(fresh.Token)
	assert.True(t, ok)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	manager, _, c := newTestManager(0)
	session := manager.Create("alice")
	c.now = c.now.Add(1000 * time.Hour)
	_, ok := manager.Get(session.Token)
	assert.True(t, ok)
	assert.Equal(t, 0, manager.Sweep())
}

func TestDeleteClosesEngine(t *testing.T) {
	manager, factory, _ := newTestManager(time.Hour)
	session := manager.Create("alice")
	table, info := sampleTable()
	_, err := session.LoadDataset(context.Background(), table, info)
	require.NoError(t, err)

	require.NoError(t, manager.Delete(session.Token))
	assert.True(t, factory.opened[0].closed)
	_, ok := manager.Get(session.Token)
	assert.False(t, ok)

	require.NoError(t, manager.Delete(session.Token))
}

func TestLoadDatasetReusesEngine(t *testing.T) {
	manager, factory, _ := newTestManager(time.Hour)
	session := manager.Create("alice")
	table, info := sampleTable()

	_, err := session.LoadDataset(context.Background(), table, info)
	require.NoError(t, err)
	_, err = session.LoadDataset(context.Background(), table, info)
	require.NoError(t, err)

	require.Len(t, factory.opened, 1)
	assert.Len(t, factory.opened[0].loaded, 2)
	assert.Equal(t, []string{"a", "b"}, session.ColumnNames())

	got, ok := session.Dataset()
	require.True(t, ok)
	assert.Equal(t, "t.csv", got.Filename)
}

func TestExecuteWithoutDataset(t *testing.T) {
	manager, _, _ := newTestManager(time.Hour)
	session := manager.Create("alice")

	_, _, err := session.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, query.ErrNoDataset)
	assert.Nil(t, session.ColumnNames())
	_, ok := session.LastResult()
	assert.False(t, ok)
}

func TestExecuteRemembersLastSuccessfulResult(t *testing.T) {
	manager, factory, _ := newTestManager(time.Hour)
	engine := &fakeEngine{result: query.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}}
	factory.next = engine
	session := manager.Create("alice")
	table, info := sampleTable()
	_, err := session.LoadDataset(context.Background(), table, info)
	require.NoError(t, err)

	result, engineName, err := session.Execute(context.Background(), "SELECT COUNT(*) AS n FROM user_data")
	require.NoError(t, err)
	assert.Equal(t, "fake", engineName)
	assert.Equal(t, []string{"n"}, result.Columns)

	engine.execErr = errors.New("boom")
	_, _, err = session.Execute(context.Background(), "SELECT nope")
	require.Error(t, err)

	last, ok := session.LastResult()
	require.True(t, ok)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM user_data", last.SQL)
}

func TestLoadingNewDatasetClearsLastResult(t *testing.T) {
	manager, factory, _ := newTestManager(time.Hour)
	factory.next = &fakeEngine{result: query.Result{Columns: []string{"n"}}}
	session := manager.Create("alice")
	table, info := sampleTable()
	_, err := session.LoadDataset(context.Background(), table, info)
	require.NoError(t, err)
	_, _, err = session.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)

	_, err = session.LoadDataset(context.Background(), table, info)
	require.NoError(t, err)
	_, ok := session.LastResult()
	assert.False(t, ok)
}

func TestCloseEndsAllSessions(t *testing.T) {
	manager, factory, _ := newTestManager(time.Hour)
	table, info := sampleTable()
	for _, name := range []string{"a", "b"} {
		session := manager.Create(name)
		_, err := session.LoadDataset(context.Background(), table, info)
		require.NoError(t, err)
	}

	require.NoError(t, manager.Close())
	assert.Equal(t, 0, manager.Count())
	for _, engine := range factory.opened {
		assert.True(t, engine.closed)
	}
}
