// Package telemetry records robot events and device samples of a simulation
// run to SQLite. It is a write-only sink: nothing in the simulation reads the
// database back.
package telemetry

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/robot"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// BufferSize is the number of records queued for the writer before new
// records are dropped.
const BufferSize = 4096

// maxBatch bounds the records written in one transaction.
const maxBatch = 256

// RunInfo describes the run being recorded.
type RunInfo struct {
	StartedAt  time.Time
	Seed       uint64
	MapWidth   int
	MapHeight  int
	Resolution float64
}

type record struct {
	event  *robot.Event
	desc   device.Descriptor
	sample device.Sample
}

// Recorder queues events and samples and writes them in batches from a
// single goroutine, so Publish and OnSample never wait on the database.
type Recorder struct {
	db    *sql.DB
	path  string
	runID string
	logf  monitoring.LogFunc

	mu      sync.RWMutex
	closed  bool
	records chan record
	done    chan struct{}
	dropped atomic.Uint64
}

// Open opens (or creates) the database at path, migrates it to the latest
// schema and starts a new run.
func Open(path string, info RunInfo) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises writes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	r := &Recorder{
		db:      db,
		path:    path,
		runID:   uuid.NewString(),
		logf:    monitoring.Prefixed("telemetry"),
		records: make(chan record, BufferSize),
		done:    make(chan struct{}),
	}
	_, err = db.Exec(
		`INSERT INTO runs (run_id, started_at, seed, map_width, map_height, resolution) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, info.StartedAt.UTC(), int64(info.Seed), info.MapWidth, info.MapHeight, info.Resolution,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	go r.write()
	r.logf("recording run %s to %s", r.runID, path)
	return r, nil
}

// RunID identifies the run in every table.
func (r *Recorder) RunID() string { return r.runID }

// Dropped returns the number of records discarded because the queue was
// full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Publish implements robot.Publisher.
func (r *Recorder) Publish(e robot.Event) {
	r.enqueue(record{event: &e})
}

// OnSample matches device.Fleet.OnSample.
func (r *Recorder) OnSample(desc device.Descriptor, s device.Sample) {
	r.enqueue(record{desc: desc, sample: s})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.records <- rec:
	default:
		if r.dropped.Add(1) == 1 {
			r.logf("queue full, dropping records")
		}
	}
}

func (r *Recorder) write() {
	defer close(r.done)
	batch := make([]record, 0, maxBatch)
	for rec := range r.records {
		batch = append(batch[:0], rec)
	drain:
		for len(batch) < maxBatch {
			select {
			case more, ok := <-r.records:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}
		if err := r.writeBatch(batch); err != nil {
			r.logf("failed to write %d records: %v", len(batch), err)
		}
	}
}

func (r *Recorder) writeBatch(batch []record) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range batch {
		if rec.event != nil {
			err = r.insertEvent(tx, *rec.event)
		} else {
			err = r.insertSample(tx, rec.desc, rec.sample)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Recorder) insertEvent(tx *sql.Tx, e robot.Event) error {
	if e.Kind == robot.EventPose {
		_, err := tx.Exec(
			`INSERT INTO poses (run_id, at, x, y, theta) VALUES (?, ?, ?, ?, ?)`,
			r.runID, e.At.UTC(), e.Pose.X, e.Pose.Y, e.Pose.Theta,
		)
		return err
	}

	var status, reason sql.NullString
	var cx, cy sql.NullFloat64
	if e.Kind == robot.EventCollision {
		status = sql.NullString{String: e.Status.String(), Valid: true}
		reason = sql.NullString{String: e.Reason, Valid: true}
		cx = sql.NullFloat64{Float64: e.Candidate.X, Valid: true}
		cy = sql.NullFloat64{Float64: e.Candidate.Y, Valid: true}
	}
	_, err := tx.Exec(
		`INSERT INTO robot_events (run_id, at, kind, status, reason, x, y, theta, candidate_x, candidate_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, e.At.UTC(), e.Kind.String(), status, reason, e.Pose.X, e.Pose.Y, e.Pose.Theta, cx, cy,
	)
	return err
}

func (r *Recorder) insertSample(tx *sql.Tx, desc device.Descriptor, s device.Sample) error {
	value, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("device %s: encode sample: %w", desc.ID, err)
	}
	_, err = tx.Exec(
		`INSERT INTO device_samples (run_id, device_id, device_type, at, value_json) VALUES (?, ?, ?, ?, ?)`,
		r.runID, desc.ID, string(desc.Type), s.Timestamp.UTC(), string(value),
	)
	return err
}

// Close flushes queued records, marks the run finished and closes the
// database. Records arriving after Close are ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()

	<-r.done
	_, err := r.db.Exec(
		`UPDATE runs SET ended_at = ?, dropped = ? WHERE run_id = ?`,
		time.Now().UTC(), int64(r.dropped.Load()), r.runID,
	)
	return errors.Join(err, r.db.Close())
}

// AttachAdminRoutes mounts tailsql on /debug/tailsql/ for live inspection of
// the recorded run.
func (r *Recorder) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+r.path, r.db, &tailsql.DBOptions{
		Label: "Telemetry DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	return nil
}

// migrateUp applies every embedded migration not yet applied.
func migrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// m is not closed: closing it would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and dirty state.
func SchemaVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logf: monitoring.Prefixed("migrate")}
	return m, nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct {
	logf monitoring.LogFunc
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
