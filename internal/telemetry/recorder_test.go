package telemetry

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/collision"
	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/kinematics"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/robot"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	r, err := Open(path, RunInfo{StartedAt: t0, Seed: 42, MapWidth: 10, MapHeight: 10, Resolution: 1})
	require.NoError(t, err)
	return r, path
}

func reopen(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestOpen_MigratesSchema(t *testing.T) {
	r, _ := openTestRecorder(t)
	defer r.Close()

	version, dirty, err := SchemaVersion(r.db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	assert.NotEmpty(t, r.RunID())
}

func TestRecorder_WritesEventsAndSamples(t *testing.T) {
	r, path := openTestRecorder(t)

	r.Publish(robot.Event{Kind: robot.EventPose, At: t0, Pose: kinematics.Pose{X: 1, Y: 5}})
	r.Publish(robot.Event{Kind: robot.EventPose, At: t0.Add(time.Second), Pose: kinematics.Pose{X: 2, Y: 5}})
	r.Publish(robot.Event{
		Kind:      robot.EventCollision,
		At:        t0.Add(2 * time.Second),
		Pose:      kinematics.Pose{X: 5, Y: 5},
		Status:    collision.Blocked,
		Reason:    "obstacle at cell (5, 5)",
		Candidate: kinematics.Pose{X: 6, Y: 5},
	})
	r.Publish(robot.Event{Kind: robot.EventReset, At: t0.Add(3 * time.Second), Pose: kinematics.Pose{X: 1, Y: 5}})

	sonar := device.Descriptor{ID: "sonar_front", Type: device.Sonar}
	r.OnSample(sonar, device.Sample{Timestamp: t0, Value: 3.5})
	r.OnSample(device.Descriptor{ID: "env", Type: device.Environment}, device.Sample{
		Timestamp: t0,
		Value:     map[string]float64{"temperature_c": 21.5},
	})

	require.NoError(t, r.Close())
	assert.Zero(t, r.Dropped())

	db := reopen(t, path)
	runID := r.RunID()
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM poses WHERE run_id = ?`, runID))
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM robot_events WHERE run_id = ?`, runID))
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM device_samples WHERE run_id = ?`, runID))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM runs WHERE run_id = ? AND ended_at IS NOT NULL AND seed = 42`, runID))

	var status, reason string
	var cx float64
	require.NoError(t, db.QueryRow(
		`SELECT status, reason, candidate_x FROM robot_events WHERE run_id = ? AND kind = 'collision'`, runID,
	).Scan(&status, &reason, &cx))
	assert.Equal(t, "blocked", status)
	assert.Contains(t, reason, "(5, 5)")
	assert.Equal(t, 6.0, cx)

	var resetStatus sql.NullString
	require.NoError(t, db.QueryRow(
		`SELECT status FROM robot_events WHERE run_id = ? AND kind = 'reset'`, runID,
	).Scan(&resetStatus))
	assert.False(t, resetStatus.Valid)

	var value string
	require.NoError(t, db.QueryRow(
		`SELECT value_json FROM device_samples WHERE run_id = ? AND device_id = 'env'`, runID,
	).Scan(&value))
	assert.JSONEq(t, `{"temperature_c": 21.5}`, value)
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r, path := openTestRecorder(t)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	// records after close are ignored rather than panicking
	r.Publish(robot.Event{Kind: robot.EventPose, At: t0})
	r.OnSample(device.Descriptor{ID: "imu", Type: device.IMU}, device.Sample{Timestamp: t0, Value: 1.0})

	db := reopen(t, path)
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM poses`))
}

func TestOpen_SecondRunSharesDatabase(t *testing.T) {
	first, path := openTestRecorder(t)
	require.NoError(t, first.Close())

	second, err := Open(path, RunInfo{StartedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, second.Close())
	assert.NotEqual(t, first.RunID(), second.RunID())

	db := reopen(t, path)
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM runs`))
}

func TestAttachAdminRoutes(t *testing.T) {
	r, _ := openTestRecorder(t)
	defer r.Close()

	mux := http.NewServeMux()
	require.NoError(t, r.AttachAdminRoutes(mux))
	_, pattern := mux.Handler(httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil))
	assert.Equal(t, "/debug/tailsql/", pattern)
}
