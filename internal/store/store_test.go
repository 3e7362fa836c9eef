//go:build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

var testDB *Client

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	snap := Snapshot{SessionID: "sess-1", Cache: `{"entries":[]}`, State: `{"bindings":{}}`, Increments: 2}
	require.NoError(t, testDB.SaveSnapshot(ctx, snap))

	got, err := testDB.LoadSnapshot(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Cache, got.Cache)
	assert.Equal(t, snap.State, got.State)
	assert.Equal(t, 2, got.Increments)
	created := got.Created

	snap.Increments = 3
	require.NoError(t, testDB.SaveSnapshot(ctx, snap))
	got, err = testDB.LoadSnapshot(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Increments)
	assert.True(t, got.Created.Equal(created), "created is kept on update")
}

func TestLoadSnapshotNotFound(t *testing.T) {
	_, err := testDB.LoadSnapshot(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListAndDeleteSnapshots(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.SaveSnapshot(ctx, Snapshot{SessionID: "a", Cache: "x", State: "y"}))
	require.NoError(t, testDB.SaveSnapshot(ctx, Snapshot{SessionID: "b", Cache: "x", State: "y"}))

	list, err := testDB.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Empty(t, list[0].Cache, "payloads are omitted")

	require.NoError(t, testDB.DeleteSnapshot(ctx, "a"))
	assert.ErrorIs(t, testDB.DeleteSnapshot(ctx, "a"), ErrNotFound)

	list, err = testDB.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].SessionID)
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	_, err := testDB.LatestReport(ctx, "sess-r")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, testDB.SaveReport(ctx, "sess-r", &models.Report{Summary: "first", ModelID: "template"}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, testDB.SaveReport(ctx, "sess-r", &models.Report{Summary: "second", ModelID: "template"}))

	rep, err := testDB.LatestReport(ctx, "sess-r")
	require.NoError(t, err)
	assert.Equal(t, "second", rep.Summary)
}
